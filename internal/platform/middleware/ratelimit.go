package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// clientLimiter is a token bucket for one client IP. Tokens refill
// continuously at the configured rate up to the burst ceiling.
type clientLimiter struct {
	mu       sync.Mutex
	tokens   float64
	last     time.Time
	rate     float64
	capacity float64
}

// take refills the bucket for the time elapsed since the last call, then
// consumes one token. It returns false, with a suggested retry delay in
// seconds, when the bucket is empty.
func (l *clientLimiter) take() (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now

	if l.tokens < 1 {
		if l.rate <= 0 {
			return false, 1
		}
		return false, int((1-l.tokens)/l.rate) + 1
	}
	l.tokens--
	return true, 0
}

// RateLimit returns middleware enforcing a per-client-IP token bucket. The
// API sits behind a reverse proxy, so RealIP resolves forwarded headers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	var mu sync.Mutex
	limiters := make(map[string]*clientLimiter)

	limiterFor := func(ip string) *clientLimiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[ip]
		if !ok {
			l = &clientLimiter{
				tokens:   float64(cfg.BurstSize),
				last:     time.Now(),
				rate:     cfg.RequestsPerSecond,
				capacity: float64(cfg.BurstSize),
			}
			limiters[ip] = l
		}
		return l
	}

	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			ok, retryAfter := limiterFor(c.RealIP()).take()
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
