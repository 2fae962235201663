package handshake

import "keychat/internal/cryptographic/pki"

// ResponderState is exactly one of WaitingForPeerKey, WaitingForSignature or
// Authenticated.
type ResponderState interface {
	responderState()
}

// WaitingForPeerKey is the initial responder state.
type WaitingForPeerKey struct{}

// WaitingForSignature holds the key the peer claims and the challenge issued
// to it. This is the only place a challenge lives.
type WaitingForSignature struct {
	PeerKey   pki.PublicKey
	Challenge Challenge
}

// Authenticated is the steady state: inbound messages are content from PeerKey.
type Authenticated struct {
	PeerKey pki.PublicKey
}

func (WaitingForPeerKey) responderState()   {}
func (WaitingForSignature) responderState() {}
func (Authenticated) responderState()       {}

// InitiatorState is exactly one of SendingKey, AwaitingChallenge or Established.
type InitiatorState interface {
	initiatorState()
}

// SendingKey is the initial initiator state; nothing may arrive before our key
// has gone out.
type SendingKey struct{}

// AwaitingChallenge follows sending the public key.
type AwaitingChallenge struct{}

// Established follows sending the challenge signature.
type Established struct{}

func (SendingKey) initiatorState()        {}
func (AwaitingChallenge) initiatorState() {}
func (Established) initiatorState()       {}

// Step is what one inbound message produced.
type Step struct {
	// Reply must be written to the peer before reading again.
	Reply []byte
	// Content is application data, set only once authenticated.
	Content []byte
}
