package dh

import (
	"fmt"

	"keychat/internal/cryptographic/pki"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SharedSecret computes the secp256k1 ECDH secret between priv and pub: the
// 32-byte x coordinate of priv*pub. Both sides of a pair get the same bytes.
func SharedSecret(priv *pki.SecretKey, pub pki.PublicKey) ([]byte, error) {
	if pub.IsZero() {
		return nil, fmt.Errorf("ecdh: empty public key")
	}
	point, err := secp256k1.ParsePubKey(pub.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	raw := priv.Bytes()
	key := secp256k1.PrivKeyFromBytes(raw)
	clear(raw)
	defer key.Zero()

	return secp256k1.GenerateSharedSecret(key, point), nil
}
