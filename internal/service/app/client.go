package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/protocol/envelope"
	"keychat/internal/protocol/handshake"
	"keychat/internal/protocol/wire"
	"keychat/internal/utils/log"

	"go.uber.org/zap"
)

var ErrNotForUs = errors.New("envelope is addressed to another key")

type (
	Options struct {
		ServerURL        string
		HandshakeTimeout time.Duration
		WriteTimeout     time.Duration
		// Cipher defaults to envelope.Plaintext.
		Cipher envelope.Cipher
	}

	// Client is one authenticated connection to the relay.
	Client struct {
		opts   Options
		secret *pki.SecretKey
		self   pki.PublicKey
		conn   *wire.Conn
	}

	Message struct {
		From pki.PublicKey
		Text string
	}
)

// Dial connects to the relay and proves ownership of secret.
func Dial(ctx context.Context, secret *pki.SecretKey, opts Options) (*Client, error) {
	if opts.Cipher == nil {
		opts.Cipher = envelope.Plaintext{}
	}

	conn, err := dialRelay(ctx, opts.ServerURL, opts.WriteTimeout)
	if err != nil {
		return nil, err
	}

	hsCtx := ctx
	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}
	if _, err := handshake.Prove(hsCtx, conn, secret); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{opts: opts, secret: secret, self: secret.PublicKey(), conn: conn}
	log.Debug("connected to relay", zap.String("url", opts.ServerURL), zap.String("self", c.self.String()))
	return c, nil
}

func (c *Client) Self() pki.PublicKey { return c.self }

func (c *Client) Send(ctx context.Context, to pki.PublicKey, text string) error {
	env, err := envelope.Seal(c.opts.Cipher, to, c.secret, text)
	if err != nil {
		return err
	}
	return c.conn.WriteEnvelope(ctx, env)
}

// SendChat sends text to every peer of chat other than ourselves, one
// envelope each.
func (c *Client) SendChat(ctx context.Context, chat *model.Chat, text string) error {
	var errs []error
	for _, pk := range chat.Peers() {
		if pk == c.self {
			continue
		}
		if err := c.Send(ctx, pk, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Receive blocks for the next envelope that verifies, is addressed to us and
// opens. Anything else is logged and skipped. It returns only transport
// errors.
func (c *Client) Receive(ctx context.Context) (*Message, error) {
	for {
		data, err := c.conn.ReadMessage(ctx)
		if err != nil {
			return nil, err
		}

		var env envelope.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("malformed envelope dropped", zap.Error(err))
			continue
		}

		msg, err := c.open(&env)
		if err != nil {
			log.Warn("envelope dropped", zap.String("from", env.From.String()), zap.Error(err))
			continue
		}
		return msg, nil
	}
}

func (c *Client) open(env *envelope.Envelope) (*Message, error) {
	if !env.Verify() {
		return nil, errors.New("signature does not verify")
	}
	if env.To != c.self {
		return nil, ErrNotForUs
	}
	text, err := env.Open(c.opts.Cipher, c.secret)
	if err != nil {
		return nil, err
	}
	return &Message{From: env.From, Text: text}, nil
}

func (c *Client) Close() error { return c.conn.Close() }
