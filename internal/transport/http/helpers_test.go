package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/callengine/livekit"
	"github.com/vovakirdan/wiremeet/internal/config"
	"github.com/vovakirdan/wiremeet/internal/service/meetings"
	"github.com/vovakirdan/wiremeet/internal/service/tokens"
	"github.com/vovakirdan/wiremeet/internal/store"
	"github.com/vovakirdan/wiremeet/internal/store/sqlite"
)

const (
	testAPIKey    = "devkey"
	testAPISecret = "test-secret-test-secret-test-secret"
	testLiveKit   = "ws://localhost:7880"
)

type testEnv struct {
	router *gin.Engine
	auth   *auth.Service
	store  store.Store
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.LiveKit = config.LiveKitConfig{APIKey: testAPIKey, APISecret: testAPISecret, URL: testLiveKit}
	cfg.RateLimit.RequestsPerMinute = 0
	return cfg
}

// newTestEnv builds a router over an in-memory store. mutate may adjust the config.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})
	engine := livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)

	logger := zerolog.Nop()
	router := NewRouter(&cfg, Services{
		Tokens:   tokens.New(engine, cfg.Token.TTL),
		Auth:     authService,
		Meetings: meetings.New(st),
	}, &logger)

	return &testEnv{router: router, auth: authService, store: st}
}

func (e *testEnv) do(t *testing.T, method, target, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", resp.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}
