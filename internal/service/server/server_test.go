package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/protocol/envelope"
	"keychat/internal/protocol/handshake"
	"keychat/internal/protocol/wire"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeers struct {
	mu   sync.Mutex
	recs map[pki.PublicKey]*model.PeerRecord
}

func (f *fakePeers) Touch(_ context.Context, pk pki.PublicKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	rec, ok := f.recs[pk]
	if !ok {
		rec = &model.PeerRecord{PublicKey: pk.String(), FirstSeen: now}
		f.recs[pk] = rec
	}
	rec.LastSeen = now
	rec.Connections++
	return nil
}

func (f *fakePeers) Get(_ context.Context, pk pki.PublicKey) (*model.PeerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[pk]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

type fakeInbox struct {
	mu     sync.Mutex
	queued map[pki.PublicKey][][]byte
}

func (f *fakeInbox) Push(_ context.Context, to pki.PublicKey, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[to] = append(f.queued[to], msg)
	return nil
}

func (f *fakeInbox) Requeue(_ context.Context, to pki.PublicKey, msgs [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[to] = append(append([][]byte(nil), msgs...), f.queued[to]...)
	return nil
}

func (f *fakeInbox) Drain(_ context.Context, to pki.PublicKey) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.queued[to]
	delete(f.queued, to)
	return out, nil
}

func (f *fakeInbox) snapshot(to pki.PublicKey) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.queued[to]...)
}

func (f *fakeInbox) count(to pki.PublicKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued[to])
}

type testRelay struct {
	*HttpServer
	peers *fakePeers
	inbox *fakeInbox
	url   string
}

func newTestRelay(t *testing.T, opts Options) *testRelay {
	t.Helper()
	peers := &fakePeers{recs: make(map[pki.PublicKey]*model.PeerRecord)}
	inbox := &fakeInbox{queued: make(map[pki.PublicKey][][]byte)}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}
	if opts.MaxMessageBytes == 0 {
		opts.MaxMessageBytes = 64 << 10
	}

	s := NewHttpServer(peers, inbox, opts)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return &testRelay{HttpServer: s, peers: peers, inbox: inbox, url: ts.URL}
}

func (r *testRelay) dial(t *testing.T) *wire.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.url, "http")+"/ws", nil)
	require.NoError(t, err)
	c := wire.New(ws, time.Second)
	t.Cleanup(func() { c.Close() })
	return c
}

// connect authenticates as secret and waits until the relay has registered
// the new connection.
func (r *testRelay) connect(t *testing.T, secret *pki.SecretKey) *wire.Conn {
	t.Helper()
	pk := secret.PublicKey()
	before, _ := r.hub.get(pk)

	c := r.dial(t)
	_, err := handshake.Prove(testContext(t), c, secret)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, ok := r.hub.get(pk)
		return ok && cur != before
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSecret(t *testing.T) *pki.SecretKey {
	t.Helper()
	sk, err := pki.GenerateSecretKey()
	require.NoError(t, err)
	return sk
}

func readText(t *testing.T, c *wire.Conn) string {
	t.Helper()
	env, _, err := c.ReadEnvelope(testContext(t))
	require.NoError(t, err)
	require.True(t, env.Verify())
	text, err := env.Decrypt()
	require.NoError(t, err)
	return text
}

func TestRelayLiveDelivery(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, bob := newSecret(t), newSecret(t)

	a := relay.connect(t, alice)
	b := relay.connect(t, bob)

	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "hi bob")))
	assert.Equal(t, "hi bob", readText(t, b))

	require.NoError(t, b.WriteEnvelope(testContext(t), envelope.New(alice.PublicKey(), bob, "hi alice")))
	assert.Equal(t, "hi alice", readText(t, a))
}

func TestRelayDropsBadEnvelopes(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, bob, mallory := newSecret(t), newSecret(t), newSecret(t)

	a := relay.connect(t, alice)
	b := relay.connect(t, bob)
	ctx := testContext(t)

	// signed by mallory, sent over alice's connection
	require.NoError(t, a.WriteEnvelope(ctx, envelope.New(bob.PublicKey(), mallory, "forged")))

	tampered := envelope.New(bob.PublicKey(), alice, "original")
	tampered.Content = []byte("altered")
	require.NoError(t, a.WriteEnvelope(ctx, tampered))

	require.NoError(t, a.WriteRaw(ctx, []byte("{not json")))

	require.NoError(t, a.WriteEnvelope(ctx, envelope.New(bob.PublicKey(), alice, "genuine")))
	assert.Equal(t, "genuine", readText(t, b))
	assert.Zero(t, relay.inbox.count(bob.PublicKey()))
}

func TestRelayOfflineInbox(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, bob := newSecret(t), newSecret(t)

	a := relay.connect(t, alice)
	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "first")))
	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "second")))

	require.Eventually(t, func() bool {
		return relay.inbox.count(bob.PublicKey()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	b := relay.connect(t, bob)
	assert.Equal(t, "first", readText(t, b))
	assert.Equal(t, "second", readText(t, b))
	assert.Zero(t, relay.inbox.count(bob.PublicKey()))
}

func TestRelayReplacesConnection(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, bob := newSecret(t), newSecret(t)

	a := relay.connect(t, alice)
	first := relay.connect(t, bob)
	second := relay.connect(t, bob)

	_, err := first.ReadMessage(testContext(t))
	assert.Error(t, err)

	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "to the new one")))
	assert.Equal(t, "to the new one", readText(t, second))
}

func TestRelayRejectsImpostor(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, mallory := newSecret(t), newSecret(t)
	ctx := testContext(t)

	c := relay.dial(t)
	require.NoError(t, c.WriteMessage(ctx, alice.PublicKey().Bytes()))

	msg, err := c.ReadMessage(ctx)
	require.NoError(t, err)
	challenge, err := handshake.ChallengeFromBytes(msg)
	require.NoError(t, err)

	require.NoError(t, c.WriteMessage(ctx, challenge.Sign(mallory).Bytes()))

	_, err = c.ReadMessage(ctx)
	assert.Error(t, err)
	assert.False(t, relay.hub.online(alice.PublicKey()))

	rec, err := relay.peers.Get(ctx, alice.PublicKey())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRelayMalformedKey(t *testing.T) {
	relay := newTestRelay(t, Options{})
	ctx := testContext(t)

	c := relay.dial(t)
	require.NoError(t, c.WriteMessage(ctx, make([]byte, 10)))

	_, err := c.ReadMessage(ctx)
	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr, "expected the connection to close without a challenge")
}

func TestRelayHandshakeTimeout(t *testing.T) {
	relay := newTestRelay(t, Options{HandshakeTimeout: 100 * time.Millisecond})

	c := relay.dial(t)
	start := time.Now()
	_, err := c.ReadMessage(testContext(t))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGetPeer(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice := newSecret(t)
	pk := alice.PublicKey()

	get := func(key string) (int, []byte) {
		resp, err := http.Get(relay.url + "/peers/" + key)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	code, _ := get("zz")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(pk.String())
	assert.Equal(t, http.StatusNotFound, code)

	c := relay.connect(t, alice)

	code, body := get(pk.String())
	require.Equal(t, http.StatusOK, code)
	var status struct {
		PublicKey string    `json:"public_key"`
		FirstSeen time.Time `json:"first_seen"`
		LastSeen  time.Time `json:"last_seen"`
		Online    bool      `json:"online"`
	}
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, pk.String(), status.PublicKey)
	assert.True(t, status.Online)
	assert.False(t, status.FirstSeen.IsZero())

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		return !relay.hub.online(pk)
	}, 2*time.Second, 5*time.Millisecond)

	code, body = get(pk.String())
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &status))
	assert.False(t, status.Online)
}

func TestHealth(t *testing.T) {
	relay := newTestRelay(t, Options{})
	resp, err := http.Get(relay.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestCheckEnvelope(t *testing.T) {
	alice, bob := newSecret(t), newSecret(t)

	env := envelope.New(bob.PublicKey(), alice, "x")
	assert.NoError(t, checkEnvelope(alice.PublicKey(), env))
	assert.ErrorIs(t, checkEnvelope(bob.PublicKey(), env), envelope.ErrSenderMismatch)

	env.To = alice.PublicKey()
	assert.ErrorIs(t, checkEnvelope(alice.PublicKey(), env), errBadSignature)
}

func TestHub(t *testing.T) {
	h := newHub()
	pk := newSecret(t).PublicKey()
	first := &peerConn{id: "1", peer: pk}
	second := &peerConn{id: "2", peer: pk}

	old, ok := h.register(first)
	assert.True(t, ok)
	assert.Nil(t, old)
	old, ok = h.register(second)
	assert.True(t, ok)
	assert.Same(t, first, old)

	h.unregister(first)
	got, ok := h.get(pk)
	require.True(t, ok)
	assert.Same(t, second, got)

	h.unregister(second)
	assert.False(t, h.online(pk))

	h.closeAll()
	_, ok = h.register(first)
	assert.False(t, ok)
	assert.False(t, h.online(pk))
}

func TestRelayOrderAcrossInbox(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice, bob := newSecret(t), newSecret(t)

	a := relay.connect(t, alice)
	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "queued")))
	require.Eventually(t, func() bool {
		return relay.inbox.count(bob.PublicKey()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// send again without waiting for bob's registration or inbox flush
	b := relay.dial(t)
	_, err := handshake.Prove(testContext(t), b, bob)
	require.NoError(t, err)
	require.NoError(t, a.WriteEnvelope(testContext(t), envelope.New(bob.PublicKey(), alice, "live")))

	assert.Equal(t, "queued", readText(t, b))
	assert.Equal(t, "live", readText(t, b))
}

func TestFlushRequeuesUndelivered(t *testing.T) {
	relay := newTestRelay(t, Options{})
	bob := newSecret(t).PublicKey()
	ctx := testContext(t)

	dead := relay.dial(t)
	require.NoError(t, dead.Close())
	c := &peerConn{Conn: dead, id: "dead", peer: bob}

	require.NoError(t, relay.inbox.Push(ctx, bob, []byte("one")))
	require.NoError(t, relay.inbox.Push(ctx, bob, []byte("two")))

	assert.Error(t, relay.flush(ctx, c))
	assert.False(t, c.ready)
	assert.False(t, relay.deliverLive(ctx, c, []byte("three")))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, relay.inbox.snapshot(bob))
}

func TestShutdownDuringHandshake(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice := newSecret(t)
	ctx := testContext(t)

	c := relay.dial(t)
	require.NoError(t, c.WriteMessage(ctx, alice.PublicKey().Bytes()))
	msg, err := c.ReadMessage(ctx)
	require.NoError(t, err)
	challenge, err := handshake.ChallengeFromBytes(msg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- relay.Shutdown(shutdownCtx)
	}()

	time.Sleep(100 * time.Millisecond)
	// the connection may already be gone
	_ = c.WriteMessage(ctx, challenge.Sign(alice).Bytes())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.False(t, relay.hub.online(alice.PublicKey()))
}

func TestShutdownClosesPeers(t *testing.T) {
	relay := newTestRelay(t, Options{})
	alice := newSecret(t)
	a := relay.connect(t, alice)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, relay.Shutdown(shutdownCtx))

	_, err := a.ReadMessage(testContext(t))
	assert.Error(t, err)
	assert.False(t, relay.hub.online(alice.PublicKey()))

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(relay.url, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
