package handshake

import (
	"context"
	"fmt"

	"keychat/internal/cryptographic/pki"
)

// Transport is one ordered, reliable, bidirectional message stream.
// Implementations should honour the context deadline.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, msg []byte) error
}

// Accept runs the responder side until the peer is authenticated and returns
// the machine in the Authenticated state. Any error means the connection must
// be closed.
func Accept(ctx context.Context, t Transport) (*Responder, error) {
	r := NewResponder()
	for !r.Authenticated() {
		if err := exchange(ctx, t, r.Receive); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Prove runs the initiator side with secret until established.
func Prove(ctx context.Context, t Transport, secret *pki.SecretKey) (*Initiator, error) {
	i := NewInitiator(secret)
	hello, err := i.Start()
	if err != nil {
		return nil, err
	}
	if err := t.WriteMessage(ctx, hello); err != nil {
		return nil, fmt.Errorf("handshake: send public key: %w", err)
	}
	for !i.Established() {
		if err := exchange(ctx, t, i.Receive); err != nil {
			return nil, err
		}
	}
	return i, nil
}

func exchange(ctx context.Context, t Transport, receive func([]byte) (Step, error)) error {
	msg, err := t.ReadMessage(ctx)
	if err != nil {
		return fmt.Errorf("handshake: read: %w", err)
	}
	step, err := receive(msg)
	if err != nil {
		return err
	}
	if step.Content != nil {
		return fmt.Errorf("%w: content during handshake", ErrProtocolViolation)
	}
	if step.Reply != nil {
		if err := t.WriteMessage(ctx, step.Reply); err != nil {
			return fmt.Errorf("handshake: write: %w", err)
		}
	}
	return nil
}
