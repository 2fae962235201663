package kdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministicAndSeparatedByInfo(t *testing.T) {
	secret := []byte("shared secret")

	k1, err := Key(secret, nil, []byte("a"), 32)
	require.NoError(t, err)
	k2, err := Key(secret, nil, []byte("a"), 32)
	require.NoError(t, err)
	k3, err := Key(secret, nil, []byte("b"), 32)
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestKeyRejectsOversizedOutput(t *testing.T) {
	// HKDF-SHA256 caps output at 255 blocks.
	_, err := Key([]byte("s"), nil, nil, 255*32+1)
	assert.Error(t, err)
}
