package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/reconciler"
)

type stubTokens struct{ token string }

func (s stubTokens) Fetch(_ context.Context, req reconciler.TokenRequest) (*reconciler.Credential, error) {
	return &reconciler.Credential{
		Token:       s.token,
		EndpointURL: "wss://media.example",
		Identity:    req.Identity,
		RoomName:    req.RoomName,
		DisplayName: req.DisplayName,
		UserType:    identity.KindGuest,
	}, nil
}

type stubConn struct{ chats chan<- string }

func (stubConn) Publish(context.Context, reconciler.MediaTrack) error { return nil }
func (stubConn) SetMuted(reconciler.TrackSource, bool) error         { return nil }
func (stubConn) Disconnect()                                         {}

func (c stubConn) SendChat(_ context.Context, text string) error {
	if c.chats != nil {
		c.chats <- text
	}
	return nil
}

// stubTransport refuses the first fails connects, or every connect when err is set.
type stubTransport struct {
	connected chan struct{}
	chats     chan string
	err       error

	mu     sync.Mutex
	once   sync.Once
	fails  int
	tokens []string
}

func (s *stubTransport) Connect(_ context.Context, _ string, token string, _ reconciler.EventSink) (reconciler.Connection, error) {
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	refuse := s.err
	if refuse == nil && s.fails > 0 {
		s.fails--
		refuse = errors.New("refused")
	}
	s.mu.Unlock()
	if refuse != nil {
		return nil, refuse
	}
	if s.connected != nil {
		s.once.Do(func() { close(s.connected) })
	}
	return stubConn{chats: s.chats}, nil
}

func (s *stubTransport) connectTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// syncBuffer guards output written by runSession while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestReconciler(t *testing.T, transport reconciler.Transport) *reconciler.Reconciler {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	r, err := reconciler.New(reconciler.Options{TokenSource: stubTokens{token: token}, Transport: transport})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func TestRunSessionPromptsUntilNameAccepted(t *testing.T) {
	transport := &stubTransport{connected: make(chan struct{})}
	r := newTestReconciler(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	in := strings.NewReader("admin\nBob\n")
	done := make(chan error, 1)
	go func() {
		done <- runSession(ctx, r, reconciler.EnterOptions{Room: "abc123"}, "", in, out)
	}()

	select {
	case <-transport.connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("never connected; output:\n%s", out.String())
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runSession did not return after interrupt")
	}

	got := out.String()
	if strings.Count(got, "Your name: ") != 2 {
		t.Fatalf("expected two prompts, got:\n%s", got)
	}
	if !strings.Contains(got, "reserved") {
		t.Fatalf("expected reserved-name error, got:\n%s", got)
	}
}

func TestRunSessionReturnsJoinFailure(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"declined", "n\n"},
		{"blank answer", "\n"},
		{"no input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(t, &stubTransport{err: errors.New("refused")})
			out := &syncBuffer{}

			err := runSession(context.Background(), r, reconciler.EnterOptions{Room: "abc123"}, "Bob", strings.NewReader(tt.input), out)
			if !errors.Is(err, reconciler.ErrTransportConnect) {
				t.Fatalf("expected ErrTransportConnect, got %v", err)
			}
			if !strings.Contains(out.String(), retryPrompt) {
				t.Fatalf("expected retry prompt, got:\n%s", out.String())
			}
		})
	}
}

func TestRunSessionRetriesAfterFailure(t *testing.T) {
	transport := &stubTransport{connected: make(chan struct{}), fails: 1}
	r := newTestReconciler(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runSession(ctx, r, reconciler.EnterOptions{Room: "abc123"}, "Bob", strings.NewReader("y\n"), out)
	}()

	select {
	case <-transport.connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("retry never connected; output:\n%s", out.String())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runSession: %v", err)
	}

	tokens := transport.connectTokens()
	if len(tokens) != 2 || tokens[0] != tokens[1] {
		t.Fatalf("expected two connects with the same credential, got %d", len(tokens))
	}
	if !strings.Contains(out.String(), retryPrompt) {
		t.Fatalf("expected retry prompt, got:\n%s", out.String())
	}
}

func TestRunSessionReturnsOnInterruptWhilePrompting(t *testing.T) {
	r := newTestReconciler(t, &stubTransport{})
	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runSession(ctx, r, reconciler.EnterOptions{Room: "abc123"}, "", stdin, out)
	}()

	waitForOutput(t, out, namePrompt)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runSession blocked on the name prompt after interrupt")
	}
}

func TestRunSessionChatAndCommands(t *testing.T) {
	transport := &stubTransport{connected: make(chan struct{}), chats: make(chan string, 4)}
	r := newTestReconciler(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		in := strings.NewReader("hello there\n/mic off\n/cam maybe\n")
		done <- runSession(ctx, r, reconciler.EnterOptions{Room: "abc123"}, "Bob", in, out)
	}()

	select {
	case text := <-transport.chats:
		if text != "hello there" {
			t.Fatalf("unexpected chat %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("chat never sent; output:\n%s", out.String())
	}
	waitForOutput(t, out, "<Bob> hello there")
	waitForOutput(t, out, "no microphone published")
	waitForOutput(t, out, "usage: /cam on|off")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runSession did not return after interrupt")
	}
}

func TestRunCommand(t *testing.T) {
	r := newTestReconciler(t, &stubTransport{})
	tests := []struct {
		line    string
		wantErr error
		wantOut string
	}{
		{line: "   "},
		{line: "/leave", wantErr: errLeaveRequested},
		{line: "/mic", wantOut: "usage: /mic on|off"},
		{line: "/cam maybe", wantOut: "usage: /cam on|off"},
		{line: "/dance", wantOut: connectedHelp},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out := &syncBuffer{}
			err := runCommand(r, out, tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("expected %q in output, got %q", tt.wantOut, out.String())
			}
		})
	}
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %q; output:\n%s", want, out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMediaLabel(t *testing.T) {
	got := mediaLabel(reconciler.MediaState{AudioOn: true, ScreenOn: true})
	if got != "mic:on cam:off screen" {
		t.Fatalf("unexpected label %q", got)
	}
}
