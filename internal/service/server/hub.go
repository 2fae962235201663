package server

import (
	"sync"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/protocol/wire"
)

type (
	// peerConn is an authenticated websocket.
	peerConn struct {
		*wire.Conn
		id   string
		peer pki.PublicKey

		// deliverMu orders inbox flushes against live writes; ready is set
		// once the inbox has been drained onto the connection.
		deliverMu sync.Mutex
		ready     bool
	}

	// hub maps each authenticated key to its single live connection.
	hub struct {
		mu     sync.Mutex
		conns  map[pki.PublicKey]*peerConn
		closed bool
	}
)

func newHub() *hub {
	return &hub{conns: make(map[pki.PublicKey]*peerConn)}
}

// register makes c the live connection for its key and returns the one it
// replaced, if any. It refuses c once the hub has been closed.
func (h *hub) register(c *peerConn) (old *peerConn, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	old = h.conns[c.peer]
	h.conns[c.peer] = c
	return old, true
}

// unregister removes c unless it has already been replaced.
func (h *hub) unregister(c *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.peer] == c {
		delete(h.conns, c.peer)
	}
}

func (h *hub) get(pk pki.PublicKey) (*peerConn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[pk]
	return c, ok
}

func (h *hub) online(pk pki.PublicKey) bool {
	_, ok := h.get(pk)
	return ok
}

func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*peerConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
