package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	visitorTTL    = 5 * time.Minute
	sweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter tracks request rates per client IP. Idle entries expire.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewIPRateLimiter allows requestsPerMinute per key with the given burst.
// A non-positive requestsPerMinute disables limiting.
func NewIPRateLimiter(requestsPerMinute, burst int) *IPRateLimiter {
	if requestsPerMinute <= 0 {
		return &IPRateLimiter{limit: rate.Inf}
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed now.
func (l *IPRateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// sweepLocked drops visitors idle for longer than visitorTTL.
func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

// RateLimitMiddleware answers 429 once the caller's IP exceeds its budget.
// The IP comes from c.ClientIP, so forwarding headers only count when the
// router trusts the peer that sent them.
func RateLimitMiddleware(limiter *IPRateLimiter, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			logger.Debug().Str("client_ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
