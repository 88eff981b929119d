package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides when forwarding headers are trusted. Nil keys on the
	// direct peer address only.
	IPConfig *pkghttp.IPConfig
}

// DefaultAuthRateLimit returns default rate limit config for the public
// protocol endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

func writeLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}

// clientKey keys a request by client IP, honouring forwarding headers only
// from trusted proxies
func clientKey(config RateLimitConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return pkghttp.ExtractClientIP(r, config.IPConfig), nil
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(clientKey(config), httprate.KeyByEndpoint),
		httprate.WithLimitHandler(writeLimited),
	)
}

// RateLimitBySession rate limits authenticated requests per session user,
// falling back to client IP when no session is in context. Must be used after
// auth.SessionMiddleware.
func RateLimitBySession(config RateLimitConfig) func(next http.Handler) http.Handler {
	byIP := clientKey(config)
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if authCtx := auth.GetAuthFromContext(r); authCtx != nil && authCtx.User != nil {
				return "user:" + authCtx.User.ID, nil
			}
			ip, err := byIP(r)
			return "ip:" + ip, err
		}),
		httprate.WithLimitHandler(writeLimited),
	)
}
