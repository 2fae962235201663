package pki

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PublicKeySize is the length of a compressed secp256k1 point.
const PublicKeySize = secp256k1.PubKeyBytesLenCompressed

// PublicKey is a compressed secp256k1 point. It is a comparable value, so ==
// and map keys work over the canonical encoding. The zero value is not a
// valid key and verifies nothing.
type PublicKey struct {
	b [PublicKeySize]byte
}

// PublicKeyFromBytes parses the 33-byte compressed encoding.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, lengthErr("public key", PublicKeySize, len(b))
	}
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, parseErr("public key", ErrInvalidPoint)
	}
	return newPublicKey(pk), nil
}

// PublicKeyFromHex parses the hex form produced by String.
func PublicKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, parseErr("public key", ErrInvalidHex)
	}
	return PublicKeyFromBytes(b)
}

func newPublicKey(pk *secp256k1.PublicKey) PublicKey {
	var out PublicKey
	copy(out.b[:], pk.SerializeCompressed())
	return out
}

// Bytes returns a copy of the compressed encoding.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, k.b[:])
	return out
}

// Array returns the compressed encoding by value.
func (k PublicKey) Array() [PublicKeySize]byte { return k.b }

// IsZero reports whether k is the zero value.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

func (k PublicKey) Equal(other PublicKey) bool { return k == other }

// Compare orders keys by their compressed encoding.
func (k PublicKey) Compare(other PublicKey) int { return bytes.Compare(k.b[:], other.b[:]) }

func (k PublicKey) String() string { return hex.EncodeToString(k.b[:]) }

// Verify reports whether sig is a valid signature by k over msg.
func (k PublicKey) Verify(msg []byte, sig Signature) bool {
	pk, err := k.point()
	if err != nil {
		return false
	}
	r, s, ok := sig.scalars()
	if !ok {
		return false
	}
	digest := sha256.Sum256(msg)
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], pk)
}

func (k PublicKey) point() (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(k.b[:])
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	pk, err := PublicKeyFromHex(string(text))
	if err != nil {
		return err
	}
	*k = pk
	return nil
}
