package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wiremeet/internal/config"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
	if resp.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestRateLimitOnTokenEndpoint(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2}
	})

	target := tokenURL(map[string]string{"identity": "bob", "roomName": "r1"})
	for i := 0; i < 2; i++ {
		expectStatus(t, env.do(t, http.MethodGet, target, "", nil), http.StatusOK)
	}
	expectStatus(t, env.do(t, http.MethodGet, target, "", nil), http.StatusTooManyRequests)

	// Health is not limited.
	expectStatus(t, env.do(t, http.MethodGet, "/health", "", nil), http.StatusOK)
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
	})

	target := tokenURL(map[string]string{"identity": "bob", "roomName": "r1"})
	allowed := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp := httptest.NewRecorder()
		env.router.ServeHTTP(resp, req)
		if resp.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("expected 1 request allowed from one peer, got %d", allowed)
	}
}

func TestRateLimitHonorsTrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})

	target := tokenURL(map[string]string{"identity": "bob", "roomName": "r1"})
	for i := 0; i < 3; i++ {
		// httptest requests come from 192.0.2.1.
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp := httptest.NewRecorder()
		env.router.ServeHTTP(resp, req)
		expectStatus(t, resp, http.StatusOK)
	}
}

func TestIPRateLimiterSweepsAtIntervals(t *testing.T) {
	limiter := NewIPRateLimiter(60, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(visitorTTL + time.Second)
	limiter.Allow("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle visitor should be evicted on the first sweep")
	}

	limiter.Allow("c")
	now = now.Add(visitorTTL + time.Second)
	limiter.Allow("d")
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected only d after sweep, got %d visitors", len(limiter.visitors))
	}

	before := limiter.lastSweep
	now = now.Add(sweepInterval / 2)
	limiter.Allow("e")
	if !limiter.lastSweep.Equal(before) {
		t.Fatalf("sweep ran before the interval elapsed")
	}
}

func TestIPRateLimiterRefillsAndSeparatesKeys(t *testing.T) {
	limiter := NewIPRateLimiter(60, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("second immediate request should be limited")
	}
	if !limiter.Allow("b") {
		t.Fatalf("other key should have its own budget")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("request after refill should pass")
	}

	now = now.Add(visitorTTL + time.Second)
	limiter.Allow("c")
	if _, ok := limiter.visitors["b"]; ok {
		t.Fatalf("idle visitor should have been evicted")
	}
}

func TestDisabledRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("x") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.CORS.AllowedOrigins = []string{"https://meet.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/token", nil)
	req.Header.Set("Origin", "https://meet.example")
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://meet.example" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp = httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got allow-origin %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}
