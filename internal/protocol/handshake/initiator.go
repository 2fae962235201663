package handshake

import (
	"fmt"

	"keychat/internal/cryptographic/pki"
)

// Initiator proves possession of a secret key to a Responder. Like the
// Responder it belongs to a single connection handler.
type Initiator struct {
	secret *pki.SecretKey
	state  InitiatorState
}

func NewInitiator(secret *pki.SecretKey) *Initiator {
	return &Initiator{secret: secret, state: SendingKey{}}
}

// State returns the current state, or nil once terminated.
func (i *Initiator) State() InitiatorState { return i.state }

func (i *Initiator) Established() bool {
	_, ok := i.state.(Established)
	return ok
}

// Start returns our public key, the first message on the connection.
func (i *Initiator) Start() ([]byte, error) {
	if _, ok := i.state.(SendingKey); !ok {
		return nil, fmt.Errorf("%w: already started", ErrProtocolViolation)
	}
	i.state = AwaitingChallenge{}
	return i.secret.PublicKey().Bytes(), nil
}

// Receive advances the machine by one inbound message.
func (i *Initiator) Receive(msg []byte) (Step, error) {
	switch i.state.(type) {
	case SendingKey:
		return i.fail(fmt.Errorf("%w: message before public key was sent", ErrProtocolViolation))

	case AwaitingChallenge:
		challenge, err := ChallengeFromBytes(msg)
		if err != nil {
			return i.fail(fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		}
		i.state = Established{}
		return Step{Reply: challenge.Sign(i.secret).Bytes()}, nil

	case Established:
		return Step{Content: msg}, nil

	default:
		return Step{}, ErrTerminated
	}
}

func (i *Initiator) fail(err error) (Step, error) {
	i.state = nil
	return Step{}, err
}
