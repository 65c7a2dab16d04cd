package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	stdhttp "net/http"
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
	transporthttp "github.com/vovakirdan/wiremeet/internal/transport/http"
)

// App wires together storage, services and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. ctx bounds
// background work such as JWKS refresh.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   sessionSecret(cfg.Auth.JWTSecret, logger),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.SessionTTL,
	})

	var verifier auth.Verifier = authService
	if cfg.Auth.JWKSURL != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, auth.JWKSConfig{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}, cfg.Auth.JWKSURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init jwks verifier: %w", err)
		}
		verifier = jwks
		logger.Info().Str("jwks_url", cfg.Auth.JWKSURL).Msg("verifying bearer tokens against external jwks")
	}

	if missing := cfg.LiveKit.Missing(); len(missing) > 0 {
		logger.Error().Strs("missing", missing).Msg("livekit is not configured; /api/token will fail")
	}
	engine := livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)

	gin.SetMode(gin.ReleaseMode)
	server := transporthttp.NewServer(cfg, transporthttp.Services{
		Tokens:   tokens.New(engine, cfg.Token.TTL),
		Auth:     authService,
		Meetings: meetings.New(st),
		Verifier: verifier,
	}, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// placeholderSecrets are values that ship in sample configs and must never sign sessions.
var placeholderSecrets = map[string]bool{"change-me": true, "changeme": true, "secret": true}

const generatedSecretBytes = 32

// sessionSecret returns the configured HS256 secret, or a random one when the
// configured value is empty or a known placeholder. Sessions signed with a
// random secret end when the process restarts.
func sessionSecret(configured string, logger *zerolog.Logger) []byte {
	if configured != "" && !placeholderSecrets[configured] {
		return []byte(configured)
	}
	secret := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("read random session secret: %v", err))
	}
	logger.Error().Msg("auth.jwt_secret is unset or a placeholder; using a random per-process secret, set WIREMEET_AUTH_JWT_SECRET to keep sessions across restarts")
	return secret
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
