package http

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/identity"
)

const (
	// ContextKeyPrincipal is the context key for the verified *identity.Principal.
	ContextKeyPrincipal = "principal"
	// ContextKeyRequestID is the context key for the request id.
	ContextKeyRequestID = "request_id"

	headerRequestID = "X-Request-ID"
)

// AuthMiddleware rejects requests without a verified bearer token.
func AuthMiddleware(verifier auth.Verifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			logger.Debug().Msg("missing or malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches a principal when a valid bearer token is present
// and otherwise lets the request through unauthenticated.
func OptionalAuthMiddleware(verifier auth.Verifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			principal, err := verifier.Verify(c.Request.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Msg("ignoring invalid bearer token")
			} else {
				c.Set(ContextKeyPrincipal, principal)
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the verified principal attached by the auth middlewares.
func PrincipalFrom(c *gin.Context) (*identity.Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*identity.Principal)
	return p, ok && p != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequestIDMiddleware propagates X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("request_id", c.GetString(ContextKeyRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for allowed origins.
// A "*" entry allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
