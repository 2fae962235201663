package handshake

import (
	"fmt"

	"keychat/internal/cryptographic/pki"
)

// Responder authenticates the party on the other end of a connection. It is
// owned by one connection handler and is not safe for concurrent use.
type Responder struct {
	state ResponderState
}

func NewResponder() *Responder {
	return &Responder{state: WaitingForPeerKey{}}
}

// State returns the current state, or nil once terminated.
func (r *Responder) State() ResponderState { return r.state }

// Peer returns the verified peer key once authenticated.
func (r *Responder) Peer() (pki.PublicKey, bool) {
	st, ok := r.state.(Authenticated)
	return st.PeerKey, ok
}

func (r *Responder) Authenticated() bool {
	_, ok := r.state.(Authenticated)
	return ok
}

// Receive advances the machine by one inbound message.
func (r *Responder) Receive(msg []byte) (Step, error) {
	switch st := r.state.(type) {
	case WaitingForPeerKey:
		peer, err := pki.PublicKeyFromBytes(msg)
		if err != nil {
			return r.fail(fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		}
		challenge, err := NewChallenge()
		if err != nil {
			return r.fail(err)
		}
		r.state = WaitingForSignature{PeerKey: peer, Challenge: challenge}
		return Step{Reply: challenge.Bytes()}, nil

	case WaitingForSignature:
		sig, err := pki.SignatureFromBytes(msg)
		if err != nil {
			return r.fail(fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		}
		if !st.Challenge.Verify(st.PeerKey, sig) {
			return r.fail(ErrAuthenticationFailed)
		}
		r.state = Authenticated{PeerKey: st.PeerKey}
		return Step{}, nil

	case Authenticated:
		return Step{Content: msg}, nil

	default:
		return Step{}, ErrTerminated
	}
}

func (r *Responder) fail(err error) (Step, error) {
	r.state = nil
	return Step{}, err
}
