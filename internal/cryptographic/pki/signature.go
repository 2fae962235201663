package pki

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SignatureSize is the length of the r‖s encoding.
const SignatureSize = 64

// Signature is an ECDSA signature in fixed r‖s form.
type Signature struct {
	b [SignatureSize]byte
}

// SignatureFromBytes parses the 64-byte r‖s encoding. r and s must both be in
// [1, n-1] and s must be in the lower half of the order.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != SignatureSize {
		return Signature{}, lengthErr("signature", SignatureSize, len(b))
	}
	var sig Signature
	copy(sig.b[:], b)
	if _, _, ok := sig.scalars(); !ok {
		return Signature{}, parseErr("signature", ErrInvalidScalar)
	}
	return sig, nil
}

// SignatureFromHex parses the output of String.
func SignatureFromHex(s string) (Signature, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Signature{}, parseErr("signature", ErrInvalidHex)
	}
	return SignatureFromBytes(b)
}

func newSignature(r, s *secp256k1.ModNScalar) Signature {
	var sig Signature
	r.PutBytesUnchecked(sig.b[:32])
	s.PutBytesUnchecked(sig.b[32:])
	return sig
}

func (sig Signature) scalars() (r, s secp256k1.ModNScalar, ok bool) {
	if overflow := r.SetByteSlice(sig.b[:32]); overflow || r.IsZero() {
		return r, s, false
	}
	if overflow := s.SetByteSlice(sig.b[32:]); overflow || s.IsZero() || s.IsOverHalfOrder() {
		return r, s, false
	}
	return r, s, true
}

// Bytes returns a copy of the r‖s encoding.
func (sig Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out, sig.b[:])
	return out
}

func (sig Signature) String() string { return hex.EncodeToString(sig.b[:]) }

func (sig Signature) MarshalText() ([]byte, error) {
	return []byte(sig.String()), nil
}

func (sig *Signature) UnmarshalText(text []byte) error {
	parsed, err := SignatureFromHex(string(text))
	if err != nil {
		return err
	}
	*sig = parsed
	return nil
}
