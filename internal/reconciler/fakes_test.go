package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/session"
)

const testEndpoint = "wss://media.example"

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

// fakeTokenSource answers with fn, or with a credential for the requested
// room when fn is nil.
type fakeTokenSource struct {
	t  *testing.T
	fn func(ctx context.Context, req TokenRequest) (*Credential, error)

	mu       sync.Mutex
	requests []TokenRequest
}

func (f *fakeTokenSource) Fetch(ctx context.Context, req TokenRequest) (*Credential, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return f.credential(req), nil
}

func (f *fakeTokenSource) credential(req TokenRequest) *Credential {
	kind := identity.KindGuest
	if req.IsAuthenticated {
		kind = identity.KindAuthenticated
	}
	return &Credential{
		Token:       tokenExpiringAt(f.t, time.Now().Add(time.Hour)),
		EndpointURL: testEndpoint,
		Identity:    identity.Sanitize(req.Identity),
		RoomName:    req.RoomName,
		DisplayName: req.DisplayName,
		UserType:    kind,
	}
}

func (f *fakeTokenSource) setFn(fn func(ctx context.Context, req TokenRequest) (*Credential, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeTokenSource) calls() []TokenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TokenRequest(nil), f.requests...)
}

type fakeConn struct {
	mu           sync.Mutex
	published    []MediaTrack
	publishErr   error
	chatErr      error
	muted        map[TrackSource]bool
	chats        []string
	disconnected int
}

func (c *fakeConn) Publish(_ context.Context, track MediaTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, track)
	return nil
}

func (c *fakeConn) SetMuted(source TrackSource, muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted == nil {
		c.muted = make(map[TrackSource]bool)
	}
	c.muted[source] = muted
	return nil
}

func (c *fakeConn) SendChat(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatErr != nil {
		return c.chatErr
	}
	c.chats = append(c.chats, text)
	return nil
}

func (c *fakeConn) isMuted(source TrackSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted[source]
}

func (c *fakeConn) sentChats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected++
	c.mu.Unlock()
}

func (c *fakeConn) disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// fakeTransport hands out fakeConns. onConnect, when set, runs inside
// Connect before it returns and may emit events or block.
type fakeTransport struct {
	onConnect  func(ctx context.Context, sink EventSink) error
	publishErr error
	chatErr    error

	mu     sync.Mutex
	conns  []*fakeConn
	sinks  []EventSink
	tokens []string
}

func (f *fakeTransport) Connect(ctx context.Context, endpointURL, token string, sink EventSink) (Connection, error) {
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.tokens = append(f.tokens, token)
	onConnect := f.onConnect
	f.mu.Unlock()

	if onConnect != nil {
		if err := onConnect(ctx, sink); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	conn := &fakeConn{publishErr: f.publishErr, chatErr: f.chatErr}
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	return conn, nil
}

func (f *fakeTransport) setOnConnect(fn func(ctx context.Context, sink EventSink) error) {
	f.mu.Lock()
	f.onConnect = fn
	f.mu.Unlock()
}

func (f *fakeTransport) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

func (f *fakeTransport) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatalf("no connection established")
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeTransport) emit(ev Event) {
	f.mu.Lock()
	sink := f.sinks[len(f.sinks)-1]
	f.mu.Unlock()
	sink(ev)
}

type fakeTrack struct {
	source TrackSource

	mu     sync.Mutex
	closed int
}

func (t *fakeTrack) Source() TrackSource { return t.source }

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	t.closed++
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeDevices struct {
	fail map[TrackSource]error

	mu     sync.Mutex
	opened []*fakeTrack
}

func (d *fakeDevices) Open(_ context.Context, source TrackSource) (MediaTrack, error) {
	if err := d.fail[source]; err != nil {
		return nil, err
	}
	track := &fakeTrack{source: source}
	d.mu.Lock()
	d.opened = append(d.opened, track)
	d.mu.Unlock()
	return track, nil
}

func (d *fakeDevices) tracks() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTrack(nil), d.opened...)
}

type fakeRenderer struct {
	mu       sync.Mutex
	released []string
}

func (r *fakeRenderer) Release(id string) {
	r.mu.Lock()
	r.released = append(r.released, id)
	r.mu.Unlock()
}

func (r *fakeRenderer) releasedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

type harness struct {
	r         *Reconciler
	tokens    *fakeTokenSource
	transport *fakeTransport
	devices   *fakeDevices
	renderer  *fakeRenderer
	cache     *session.MemoryStore
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		tokens:    &fakeTokenSource{t: t},
		transport: &fakeTransport{},
		devices:   &fakeDevices{},
		renderer:  &fakeRenderer{},
		cache:     session.NewMemoryStore(),
	}
	opts := Options{
		TokenSource:  h.tokens,
		Transport:    h.transport,
		Devices:      h.devices,
		Cache:        h.cache,
		Renderer:     h.renderer,
		FetchTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}

	r, err := New(opts)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	h.r = r

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func mustState(t *testing.T, r *Reconciler, want State) View {
	t.Helper()
	var v View
	waitFor(t, "state "+want.String(), func() bool {
		v = r.Snapshot()
		return v.State == want
	})
	return v
}

func mustNotification(t *testing.T, r *Reconciler, kind NotificationKind) Notification {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-r.Notifications():
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("timeout waiting for notification kind %d", kind)
			return Notification{}
		}
	}
}

func mustEnter(t *testing.T, r *Reconciler, o EnterOptions) {
	t.Helper()
	if err := r.Enter(o); err != nil {
		t.Fatalf("enter: %v", err)
	}
}

func cached(t *testing.T, c session.Store, room string) bool {
	t.Helper()
	_, err := c.Load(context.Background(), room)
	if err != nil && !errors.Is(err, session.ErrNoEntry) {
		t.Fatalf("load cache: %v", err)
	}
	return err == nil
}
