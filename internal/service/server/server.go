package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/protocol/envelope"
	"keychat/internal/protocol/handshake"
	"keychat/internal/protocol/wire"
	"keychat/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errBadSignature = errors.New("envelope signature does not verify")

type (
	// PeerDirectory remembers every key that has authenticated.
	PeerDirectory interface {
		Touch(ctx context.Context, pk pki.PublicKey) error
		Get(ctx context.Context, pk pki.PublicKey) (*model.PeerRecord, error)
	}

	// Inbox queues envelopes for recipients that are not connected.
	Inbox interface {
		Push(ctx context.Context, to pki.PublicKey, msg []byte) error
		// Requeue puts msgs back at the head of the queue, in order.
		Requeue(ctx context.Context, to pki.PublicKey, msgs [][]byte) error
		Drain(ctx context.Context, to pki.PublicKey) ([][]byte, error)
	}

	Options struct {
		ListenAddr       string
		HandshakeTimeout time.Duration
		WriteTimeout     time.Duration
		MaxMessageBytes  int64
	}

	// HttpServer is the relay. Every websocket must authenticate before it
	// can send or receive envelopes.
	HttpServer struct {
		opts     Options
		peers    PeerDirectory
		inbox    Inbox
		hub      *hub
		upgrader websocket.Upgrader

		srv *http.Server

		// ctx is cancelled by Shutdown and closes every websocket.
		ctx    context.Context
		cancel context.CancelFunc

		mu      sync.Mutex
		closing bool
		wg      sync.WaitGroup
	}
)

const defaultHandshakeTimeout = 10 * time.Second

func NewHttpServer(peers PeerDirectory, inbox Inbox, opts Options) *HttpServer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HttpServer{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		peers:  peers,
		inbox:  inbox,
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // clients are not browsers
			},
		},
	}
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/peers/{key}", s.HandleGetPeer()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.HandleHealth()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down and closes every peer
// connection.
func (s *HttpServer) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", zap.String("addr", s.opts.ListenAddr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting websockets, closes the open ones, including those
// still in the handshake, and waits for their handlers until ctx is done.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	log.Info("relay stopped")
	return err
}

// track counts one more websocket handler unless Shutdown has begun.
func (s *HttpServer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.track() {
			http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.wg.Done()

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		if s.opts.MaxMessageBytes > 0 {
			ws.SetReadLimit(s.opts.MaxMessageBytes)
		}

		c := &peerConn{Conn: wire.New(ws, s.opts.WriteTimeout), id: uuid.NewString()}
		defer c.Close()

		stop := context.AfterFunc(s.ctx, func() { c.Close() })
		defer stop()

		s.serve(s.ctx, c)
	}
}

func (s *HttpServer) serve(ctx context.Context, c *peerConn) {
	hsCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	responder, err := handshake.Accept(hsCtx, c)
	cancel()
	if err != nil {
		log.Debug("handshake failed", zap.String("conn_id", c.id), zap.Error(err))
		return
	}

	c.peer, _ = responder.Peer()
	fields := []zap.Field{zap.String("conn_id", c.id), zap.String("peer", c.peer.String())}
	log.Info("peer authenticated", fields...)

	if err := s.peers.Touch(ctx, c.peer); err != nil {
		log.Warn("record peer failed", append(fields, zap.Error(err))...)
	}

	old, ok := s.hub.register(c)
	if !ok {
		log.Debug("relay closing, connection refused", fields...)
		return
	}
	if old != nil {
		log.Info("connection replaced", append(fields, zap.String("old_conn_id", old.id))...)
		old.Close()
	}
	defer s.hub.unregister(c)

	if err := s.flush(ctx, c); err != nil {
		log.Error("forward queued envelopes failed", append(fields, zap.Error(err))...)
		return
	}

	for {
		data, err := c.ReadMessage(context.Background())
		if err != nil {
			log.Debug("peer disconnected", append(fields, zap.Error(err))...)
			return
		}

		step, err := responder.Receive(data)
		if err != nil {
			log.Warn("receive failed", append(fields, zap.Error(err))...)
			return
		}
		s.route(ctx, c, step.Content)
	}
}

// route delivers one envelope from an authenticated peer. Envelopes that are
// malformed, claim another sender or fail verification are dropped and the
// connection is kept.
func (s *HttpServer) route(ctx context.Context, from *peerConn, data []byte) {
	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn("malformed envelope dropped", zap.String("conn_id", from.id), zap.Error(err))
		return
	}
	if err := checkEnvelope(from.peer, &env); err != nil {
		log.Warn("envelope dropped",
			zap.String("conn_id", from.id),
			zap.String("peer", from.peer.String()),
			zap.Error(err))
		return
	}

	if dst, ok := s.hub.get(env.To); ok && s.deliverLive(ctx, dst, data) {
		return
	}

	if err := s.inbox.Push(ctx, env.To, data); err != nil {
		log.Error("queue envelope failed", zap.String("to", env.To.String()), zap.Error(err))
		return
	}

	// the recipient may have registered and drained between the lookup and the push
	if dst, ok := s.hub.get(env.To); ok {
		if err := s.flush(ctx, dst); err != nil {
			log.Error("forward queued envelopes failed", zap.String("conn_id", dst.id), zap.Error(err))
		}
	}
}

func checkEnvelope(peer pki.PublicKey, env *envelope.Envelope) error {
	if env.From != peer {
		return envelope.ErrSenderMismatch
	}
	if !env.Verify() {
		return errBadSignature
	}
	return nil
}

// deliverLive writes data to c once c has caught up with its inbox. It
// reports false when the envelope should be queued instead.
func (s *HttpServer) deliverLive(ctx context.Context, c *peerConn, data []byte) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if !c.ready {
		return false
	}
	if err := c.WriteRaw(ctx, data); err != nil {
		log.Debug("live delivery failed, queueing", zap.String("conn_id", c.id), zap.Error(err))
		return false
	}
	return true
}

// flush drains c's inbox onto c in arrival order and then opens c to live
// delivery. Whatever cannot be written goes back to the head of the inbox.
func (s *HttpServer) flush(ctx context.Context, c *peerConn) error {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	queued, err := s.inbox.Drain(ctx, c.peer)
	if err != nil {
		return err
	}

	for i, data := range queued {
		if err := c.WriteRaw(ctx, data); err != nil {
			c.ready = false
			if rerr := s.inbox.Requeue(ctx, c.peer, queued[i:]); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
	}
	c.ready = true

	if len(queued) > 0 {
		log.Debug("forwarded queued envelopes", zap.String("conn_id", c.id), zap.Int("count", len(queued)))
	}
	return nil
}

func (s *HttpServer) HandleGetPeer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		pk, err := pki.PublicKeyFromHex(mux.Vars(r)["key"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := s.peers.Get(ctx, pk)
		if err != nil {
			log.Error("get peer failed", zap.String("peer", pk.String()), zap.Error(err))
			http.Error(w, "get peer failed", http.StatusInternalServerError)
			return
		}

		if rec == nil {
			http.Error(w, fmt.Sprintf("peer %s not found", pk), http.StatusNotFound)
			return
		}

		data, err := json.Marshal(&model.PeerStatus{PeerRecord: *rec, Online: s.hub.online(pk)})
		if err != nil {
			http.Error(w, "get peer failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *HttpServer) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
