package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/config"
	"github.com/vovakirdan/wiremeet/internal/service/meetings"
	"github.com/vovakirdan/wiremeet/internal/service/tokens"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Tokens   *tokens.Service
	Auth     *auth.Service
	Meetings *meetings.Service
	// Verifier checks bearer tokens. Defaults to Auth when nil.
	Verifier auth.Verifier
}

// NewServer builds the HTTP server with all routes.
func NewServer(cfg *config.Config, svc Services, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, svc, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers routes and middleware on a fresh gin engine.
func NewRouter(cfg *config.Config, svc Services, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error().Err(err).Strs("trusted_proxies", cfg.TrustedProxies).Msg("invalid trusted proxies; trusting none")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))

	verifier := svc.Verifier
	if verifier == nil {
		verifier = svc.Auth
	}

	limiter := NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	limited := RateLimitMiddleware(limiter, logger)
	optionalAuth := OptionalAuthMiddleware(verifier, logger)
	requireAuth := AuthMiddleware(verifier, logger)

	tokenHandlers := NewTokenHandlers(svc.Tokens, svc.Meetings, cfg.LiveKit.Missing(), logger)
	authHandlers := NewAuthHandlers(svc.Auth, logger)
	profileHandlers := NewProfileHandlers(svc.Auth, logger)
	meetingHandlers := NewMeetingHandlers(svc.Meetings, logger)

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	{
		api.GET("/token", limited, optionalAuth, tokenHandlers.IssueToken)

		authGroup := api.Group("/auth", limited)
		authGroup.POST("/register", authHandlers.Register)
		authGroup.POST("/login", authHandlers.Login)

		api.GET("/me", requireAuth, profileHandlers.GetProfile)
		api.PUT("/me", requireAuth, profileHandlers.UpdateProfile)

		api.POST("/meetings", optionalAuth, meetingHandlers.CreateMeeting)
		api.GET("/meetings/recent", requireAuth, meetingHandlers.RecentMeetings)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
