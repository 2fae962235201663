package handshake

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"keychat/internal/cryptographic/pki"
)

// ChallengeSize is the nonce length on the wire.
const ChallengeSize = 32

// Challenge is a single-use random nonce. Signing and verification cover the
// raw nonce bytes and nothing else.
type Challenge struct {
	b [ChallengeSize]byte
}

// NewChallenge fills a nonce from crypto/rand.
func NewChallenge() (Challenge, error) {
	var c Challenge
	if _, err := rand.Read(c.b[:]); err != nil {
		return Challenge{}, fmt.Errorf("challenge: %w", err)
	}
	return c, nil
}

// ChallengeFromBytes accepts exactly ChallengeSize bytes.
func ChallengeFromBytes(b []byte) (Challenge, error) {
	if len(b) != ChallengeSize {
		return Challenge{}, &pki.ParseError{
			What: "challenge",
			Err:  fmt.Errorf("%w: want %d bytes, got %d", pki.ErrInvalidLength, ChallengeSize, len(b)),
		}
	}
	var c Challenge
	copy(c.b[:], b)
	return c, nil
}

func (c Challenge) Sign(sk *pki.SecretKey) pki.Signature {
	return sk.Sign(c.b[:])
}

func (c Challenge) Verify(pk pki.PublicKey, sig pki.Signature) bool {
	return pk.Verify(c.b[:], sig)
}

func (c Challenge) Bytes() []byte {
	out := make([]byte, ChallengeSize)
	copy(out, c.b[:])
	return out
}

func (c Challenge) String() string { return hex.EncodeToString(c.b[:]) }
