package envelope

import (
	"keychat/internal/cryptographic/dh"
	"keychat/internal/cryptographic/encryption"
	"keychat/internal/cryptographic/kdf"
	"keychat/internal/cryptographic/pki"
)

// Cipher turns plaintext into envelope content and back. Decrypt receives the
// envelope's own from/to keys; self is the secret key of whoever opens it.
type Cipher interface {
	Encrypt(to pki.PublicKey, from *pki.SecretKey, plaintext []byte) ([]byte, error)
	Decrypt(self *pki.SecretKey, from, to pki.PublicKey, content []byte) ([]byte, error)
}

// Plaintext is the identity transform. Content is readable by anyone.
type Plaintext struct{}

func (Plaintext) Encrypt(_ pki.PublicKey, _ *pki.SecretKey, plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (Plaintext) Decrypt(_ *pki.SecretKey, _, _ pki.PublicKey, content []byte) ([]byte, error) {
	return content, nil
}

// SharedKey encrypts with AES-256-GCM under HKDF-SHA256 of the static
// secp256k1 ECDH secret between sender and recipient. The to‖from addresses
// are bound as associated data. There is no forward secrecy: compromise of
// either static key exposes every envelope between the pair.
type SharedKey struct{}

var sharedKeyInfo = []byte("keychat envelope")

func (SharedKey) Encrypt(to pki.PublicKey, from *pki.SecretKey, plaintext []byte) ([]byte, error) {
	key, err := sharedKey(from, to)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return encryption.AEADEncrypt(key, plaintext, addresses(to, from.PublicKey()))
}

func (SharedKey) Decrypt(self *pki.SecretKey, from, to pki.PublicKey, content []byte) ([]byte, error) {
	peer := from
	if self.PublicKey() == from {
		peer = to
	}
	key, err := sharedKey(self, peer)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return encryption.AEADDecrypt(key, content, addresses(to, from))
}

func sharedKey(self *pki.SecretKey, peer pki.PublicKey) ([]byte, error) {
	secret, err := dh.SharedSecret(self, peer)
	if err != nil {
		return nil, err
	}
	defer clear(secret)
	return kdf.Key(secret, nil, sharedKeyInfo, 32)
}

func addresses(to, from pki.PublicKey) []byte {
	return append(to.Bytes(), from.Bytes()...)
}
