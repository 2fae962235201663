// Package envelope implements the signed, addressed unit of content that
// peers exchange once a connection is authenticated.
//
// The signature covers to ‖ from ‖ content, in that order, so it cannot be
// moved to another recipient, sender or payload. Verification needs nothing
// but the embedded sender key.
//
// Content is produced by a Cipher. The default, Plaintext, is the identity
// transform on UTF-8 text and provides no confidentiality. SharedKey is an
// opt-in replacement; both sides must agree on it out of band.
package envelope

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"keychat/internal/cryptographic/pki"
)

var ErrSenderMismatch = errors.New("envelope: sender is not the authenticated peer")

// DecodeError means the content is not valid UTF-8 text. It is not an
// authentication or transport fault.
type DecodeError struct {
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("envelope: content is not valid utf-8 at byte %d", e.Offset)
}

type Envelope struct {
	To        pki.PublicKey `json:"to"`
	From      pki.PublicKey `json:"from"`
	Content   []byte        `json:"ciphertext"`
	Signature pki.Signature `json:"signature"`
}

// New builds a signed envelope with Plaintext content. The identity
// transform cannot fail, so neither can New.
func New(to pki.PublicKey, from *pki.SecretKey, plaintext string) *Envelope {
	return seal(to, from, []byte(plaintext))
}

// Seal builds a signed envelope whose content is c's encryption of plaintext.
func Seal(c Cipher, to pki.PublicKey, from *pki.SecretKey, plaintext string) (*Envelope, error) {
	content, err := c.Encrypt(to, from, []byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt: %w", err)
	}
	return seal(to, from, content), nil
}

func seal(to pki.PublicKey, from *pki.SecretKey, content []byte) *Envelope {
	sender := from.PublicKey()
	return &Envelope{
		To:        to,
		From:      sender,
		Content:   content,
		Signature: from.Sign(signatureMaterial(to, sender, content)),
	}
}

// Verify checks the signature against the embedded sender key.
func (e *Envelope) Verify() bool {
	return e.From.Verify(signatureMaterial(e.To, e.From, e.Content), e.Signature)
}

// Decrypt returns the content as text under the Plaintext cipher.
func (e *Envelope) Decrypt() (string, error) {
	return decode(e.Content)
}

// Open decrypts content sealed with c. self is the recipient's secret key.
func (e *Envelope) Open(c Cipher, self *pki.SecretKey) (string, error) {
	plain, err := c.Decrypt(self, e.From, e.To, e.Content)
	if err != nil {
		return "", fmt.Errorf("envelope: decrypt: %w", err)
	}
	return decode(plain)
}

func decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &DecodeError{Offset: invalidOffset(b)}
	}
	return string(b), nil
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}

func signatureMaterial(to, from pki.PublicKey, content []byte) []byte {
	out := make([]byte, 0, 2*pki.PublicKeySize+len(content))
	out = append(out, to.Bytes()...)
	out = append(out, from.Bytes()...)
	return append(out, content...)
}
