package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

// ErrUnauthorized is returned when a bearer token does not verify.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a bearer token into a verified principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*identity.Principal, error)
}

// JWKSConfig controls validation of ID tokens issued by an external provider.
type JWKSConfig struct {
	Issuer      string
	Audience    string
	AllowedAlgs []string
	Leeway      time.Duration
}

// JWKSVerifier validates RS256 tokens against a remote JWKS.
type JWKSVerifier struct {
	cfg     JWKSConfig
	keyfunc jwt.Keyfunc
}

// NewJWKSVerifier fetches the key set at jwksURL and keeps it refreshed until ctx ends.
func NewJWKSVerifier(ctx context.Context, cfg JWKSConfig, jwksURL string) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newJWKSVerifier(cfg, kf.Keyfunc), nil
}

func newJWKSVerifier(cfg JWKSConfig, kf jwt.Keyfunc) *JWKSVerifier {
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	return &JWKSVerifier{
		cfg: cfg,
		keyfunc: func(t *jwt.Token) (any, error) {
			if !slices.Contains(cfg.AllowedAlgs, t.Method.Alg()) {
				return nil, fmt.Errorf("disallowed alg: %s", t.Method.Alg())
			}
			return kf(t)
		},
	}
}

// Verify implements Verifier.
func (v *JWKSVerifier) Verify(_ context.Context, token string) (*identity.Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, v.keyfunc, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return principalFromClaims(&claims), nil
}

func principalFromClaims(c *Claims) *identity.Principal {
	return &identity.Principal{
		UID:         c.Subject,
		DisplayName: c.Name,
		Email:       c.Email,
		PhotoURL:    c.Picture,
	}
}

var _ Verifier = (*JWKSVerifier)(nil)
