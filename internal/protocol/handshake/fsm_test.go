package handshake

import (
	"crypto/rand"
	"testing"

	"keychat/internal/cryptographic/pki"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeHappyPath(t *testing.T) {
	secret := newSecret(t)
	initiator := NewInitiator(secret)
	responder := NewResponder()
	assert.IsType(t, WaitingForPeerKey{}, responder.State())
	assert.IsType(t, SendingKey{}, initiator.State())

	hello, err := initiator.Start()
	require.NoError(t, err)
	require.Len(t, hello, pki.PublicKeySize)
	assert.IsType(t, AwaitingChallenge{}, initiator.State())

	step, err := responder.Receive(hello)
	require.NoError(t, err)
	require.Len(t, step.Reply, ChallengeSize)
	assert.Nil(t, step.Content)

	waiting, ok := responder.State().(WaitingForSignature)
	require.True(t, ok)
	assert.Equal(t, secret.PublicKey(), waiting.PeerKey)
	assert.Equal(t, step.Reply, waiting.Challenge.Bytes())

	step, err = initiator.Receive(step.Reply)
	require.NoError(t, err)
	require.Len(t, step.Reply, pki.SignatureSize)
	assert.True(t, initiator.Established())

	step, err = responder.Receive(step.Reply)
	require.NoError(t, err)
	assert.Nil(t, step.Reply)
	assert.Equal(t, Authenticated{PeerKey: secret.PublicKey()}, responder.State())

	peer, ok := responder.Peer()
	require.True(t, ok)
	assert.Equal(t, secret.PublicKey(), peer)

	step, err = responder.Receive([]byte("hi there"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi there"), step.Content)
	assert.Nil(t, step.Reply)

	step, err = initiator.Receive([]byte("hello back"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello back"), step.Content)
}

func TestResponderRejectsWrongKey(t *testing.T) {
	claimed := newSecret(t)
	actual := newSecret(t)
	responder := NewResponder()

	step, err := responder.Receive(claimed.PublicKey().Bytes())
	require.NoError(t, err)

	challenge, err := ChallengeFromBytes(step.Reply)
	require.NoError(t, err)
	sig := challenge.Sign(actual)
	assert.False(t, challenge.Verify(claimed.PublicKey(), sig))

	_, err = responder.Receive(sig.Bytes())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Nil(t, responder.State())
	assert.False(t, responder.Authenticated())

	_, err = responder.Receive(sig.Bytes())
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestResponderRejectsMalformedPeerKey(t *testing.T) {
	junk := make([]byte, 10)
	_, err := rand.Read(junk)
	require.NoError(t, err)

	responder := NewResponder()
	step, err := responder.Receive(junk)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, pki.ErrInvalidLength)
	assert.Nil(t, step.Reply, "no challenge may be issued")
	assert.Nil(t, responder.State())
}

func TestResponderRejectsMalformedSignature(t *testing.T) {
	responder := NewResponder()
	_, err := responder.Receive(newSecret(t).PublicKey().Bytes())
	require.NoError(t, err)

	_, err = responder.Receive(make([]byte, 70))
	assert.ErrorIs(t, err, ErrProtocolViolation)

	var perr *pki.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Nil(t, responder.State())
}

func TestResponderRejectsReplayedSignature(t *testing.T) {
	secret := newSecret(t)

	// A signature captured from one successful handshake...
	first := NewResponder()
	step, err := first.Receive(secret.PublicKey().Bytes())
	require.NoError(t, err)
	c, err := ChallengeFromBytes(step.Reply)
	require.NoError(t, err)
	captured := c.Sign(secret)
	_, err = first.Receive(captured.Bytes())
	require.NoError(t, err)

	// ...does not answer the fresh challenge of the next one.
	second := NewResponder()
	_, err = second.Receive(secret.PublicKey().Bytes())
	require.NoError(t, err)
	_, err = second.Receive(captured.Bytes())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestInitiatorRejectsBadChallenge(t *testing.T) {
	for _, n := range []int{0, 16, 33} {
		initiator := NewInitiator(newSecret(t))
		_, err := initiator.Start()
		require.NoError(t, err)

		_, err = initiator.Receive(make([]byte, n))
		assert.ErrorIs(t, err, ErrProtocolViolation, "length %d", n)
		assert.Nil(t, initiator.State())
	}
}

func TestInitiatorOrdering(t *testing.T) {
	initiator := NewInitiator(newSecret(t))

	_, err := initiator.Receive(make([]byte, ChallengeSize))
	assert.ErrorIs(t, err, ErrProtocolViolation)

	initiator = NewInitiator(newSecret(t))
	_, err = initiator.Start()
	require.NoError(t, err)
	_, err = initiator.Start()
	assert.ErrorIs(t, err, ErrProtocolViolation)
}
