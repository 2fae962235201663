// Package wire adapts a gorilla websocket connection to the message stream
// the handshake and the envelope exchange run over. Handshake messages travel
// as binary frames, envelopes as JSON text frames.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"keychat/internal/protocol/envelope"

	"github.com/gorilla/websocket"
)

// Conn is safe for one reader and any number of concurrent writers.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func New(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// ReadMessage returns the next frame's payload. The context deadline, if
// any, bounds the read.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	deadline, hasDeadline := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ne net.Error
		if hasDeadline && errors.As(err, &ne) && ne.Timeout() {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	return data, nil
}

func (c *Conn) WriteMessage(ctx context.Context, msg []byte) error {
	return c.write(ctx, websocket.BinaryMessage, msg)
}

// ReadEnvelope reads one text frame and decodes it. The raw frame is returned
// alongside so it can be forwarded untouched.
func (c *Conn) ReadEnvelope(ctx context.Context) (*envelope.Envelope, []byte, error) {
	data, err := c.ReadMessage(ctx)
	if err != nil {
		return nil, nil, err
	}
	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, data, err
	}
	return &env, data, nil
}

func (c *Conn) WriteEnvelope(ctx context.Context, env *envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.WriteRaw(ctx, data)
}

// WriteRaw sends an already encoded envelope.
func (c *Conn) WriteRaw(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.TextMessage, data)
}

func (c *Conn) write(ctx context.Context, messageType int, data []byte) error {
	deadline, ok := ctx.Deadline()
	if c.writeTimeout > 0 {
		if d := time.Now().Add(c.writeTimeout); !ok || d.Before(deadline) {
			deadline = d
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// Close sends a close frame, best effort, and closes the socket. Calls after
// the first are no-ops.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
