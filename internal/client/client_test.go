package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/callengine/livekit"
	"github.com/vovakirdan/wiremeet/internal/config"
	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/reconciler"
	"github.com/vovakirdan/wiremeet/internal/service/meetings"
	"github.com/vovakirdan/wiremeet/internal/service/tokens"
	"github.com/vovakirdan/wiremeet/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wiremeet/internal/transport/http"
	"github.com/vovakirdan/wiremeet/internal/utils"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.LiveKit = config.LiveKitConfig{APIKey: "devkey", APISecret: "test-secret-test-secret-test-secret", URL: "ws://localhost:7880"}
	cfg.RateLimit.RequestsPerMinute = 0

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{Secret: []byte("test-secret"), TTL: time.Hour})
	engine := livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)
	logger := zerolog.Nop()
	router := transporthttp.NewRouter(&cfg, transporthttp.Services{
		Tokens:   tokens.New(engine, cfg.Token.TTL),
		Auth:     authService,
		Meetings: meetings.New(st),
	}, &logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterLoginAndJoin(t *testing.T) {
	srv := newTestServer(t)
	c := &Client{BaseURL: srv.URL}
	ctx := context.Background()

	if _, err := c.Register(ctx, "ada@example.com", "secret123", "Ada Lovelace"); err != nil {
		t.Fatalf("register: %v", err)
	}
	s, err := c.Login(ctx, "ada@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Token == "" || s.User.DisplayName != "Ada Lovelace" {
		t.Fatalf("unexpected session %+v", s)
	}

	room, err := c.CreateMeeting(ctx, s.Token)
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	if !utils.IsRoomName(room) {
		t.Fatalf("unexpected room name %q", room)
	}

	principal := s.User.Principal()
	src := &reconciler.HTTPTokenSource{BaseURL: srv.URL}
	cred, err := src.Fetch(ctx, reconciler.TokenRequest{
		Identity:        identity.FromPrincipal(principal),
		RoomName:        room,
		DisplayName:     principal.DisplayName,
		IsAuthenticated: true,
		UserID:          principal.UID,
		BearerToken:     s.Token,
	})
	if err != nil {
		t.Fatalf("fetch token: %v", err)
	}
	if cred.UserType != identity.KindAuthenticated || cred.Identity != "Ada_Lovelace" || cred.RoomName != room {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestUnverifiedAuthenticatedRequestIsDowngraded(t *testing.T) {
	srv := newTestServer(t)
	src := &reconciler.HTTPTokenSource{BaseURL: srv.URL}

	cred, err := src.Fetch(context.Background(), reconciler.TokenRequest{
		Identity:        "mallory",
		RoomName:        "abc123def",
		IsAuthenticated: true,
		UserID:          "1",
	})
	if err != nil {
		t.Fatalf("fetch token: %v", err)
	}
	if cred.UserType == identity.KindAuthenticated {
		t.Fatalf("request without a bearer token must not be authenticated")
	}
}

func TestLoginFailure(t *testing.T) {
	srv := newTestServer(t)
	c := &Client{BaseURL: srv.URL}

	_, err := c.Login(context.Background(), "nobody@example.com", "secret123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestCreateMeetingAnonymously(t *testing.T) {
	srv := newTestServer(t)
	c := &Client{BaseURL: srv.URL}

	room, err := c.CreateMeeting(context.Background(), "")
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	if room == "" {
		t.Fatalf("expected room name")
	}
}
