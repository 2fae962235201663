package pki

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SecretKeySize is the length of a serialized secp256k1 scalar.
const SecretKeySize = secp256k1.PrivKeyBytesLen

// SecretKey is a secp256k1 scalar. It has no text or JSON marshalling; Hex
// is the only export.
type SecretKey struct {
	key *secp256k1.PrivateKey
}

// GenerateSecretKey draws a new key from crypto/rand.
func GenerateSecretKey() (*SecretKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return &SecretKey{key: key}, nil
}

// SecretKeyFromBytes parses a 32-byte big-endian scalar.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeySize {
		return nil, lengthErr("secret key", SecretKeySize, len(b))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, parseErr("secret key", ErrInvalidScalar)
	}
	return &SecretKey{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

// SecretKeyFromHex parses the output of Hex.
func SecretKeyFromHex(s string) (*SecretKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, parseErr("secret key", ErrInvalidHex)
	}
	return SecretKeyFromBytes(b)
}

// PublicKey derives the matching public key.
func (k *SecretKey) PublicKey() PublicKey {
	return newPublicKey(k.key.PubKey())
}

// Sign returns a signature over SHA-256(msg).
func (k *SecretKey) Sign(msg []byte) Signature {
	digest := sha256.Sum256(msg)
	sig := ecdsa.Sign(k.key, digest[:])
	r, s := sig.R(), sig.S()
	return newSignature(&r, &s)
}

// Bytes returns the 32-byte big-endian scalar.
func (k *SecretKey) Bytes() []byte { return k.key.Serialize() }

// Hex exports the scalar as lowercase hex.
func (k *SecretKey) Hex() string { return hex.EncodeToString(k.key.Serialize()) }

func (k *SecretKey) Equal(other *SecretKey) bool {
	return k.key.Key.Equals(&other.key.Key)
}

// String is redacted so a secret key never ends up in a log line.
func (k *SecretKey) String() string {
	return "SecretKey(" + k.PublicKey().String() + ")"
}

// Zero clears the scalar. The key is unusable afterwards.
func (k *SecretKey) Zero() { k.key.Zero() }
