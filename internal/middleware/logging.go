package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestMeta stores the client address, user agent and request id on the
// request context so audit records can carry them
func RequestMeta(ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := pkglogger.WithRequestMeta(r.Context(), pkglogger.RequestMeta{
				IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
				UserAgent: r.UserAgent(),
				RequestID: middleware.GetReqID(r.Context()),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecureLogger returns a middleware for logging HTTP requests with sensitive data redaction.
// Client addresses are redacted when env is production.
func SecureLogger(logger *slog.Logger, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			// Nonces and challenges may appear in query strings
			path := r.URL.Path
			if pkglogger.SanitizeQueryString(r.URL.RawQuery) {
				path = path + "?[REDACTED]"
			} else if r.URL.RawQuery != "" {
				path = r.URL.Path + "?" + r.URL.RawQuery
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", wrapped.Status()),
				slog.Int64("bytes", int64(wrapped.BytesWritten())),
				slog.String("duration", time.Since(start).String()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}

			meta := pkglogger.RequestMetaFrom(r.Context())
			if meta.IPAddress != "" {
				attrs = append(attrs, pkglogger.RedactedAttr("client_ip", meta.IPAddress, env))
			} else {
				attrs = append(attrs, pkglogger.RedactedAttr("remote_addr", r.RemoteAddr, env))
			}

			// Only header names are logged, credentials never
			var credentialHeaders []string
			for name := range r.Header {
				if pkglogger.IsSensitiveHeader(name) {
					credentialHeaders = append(credentialHeaders, name)
				}
			}
			if len(credentialHeaders) > 0 {
				attrs = append(attrs, slog.Any("credential_headers", credentialHeaders))
			}

			level := slog.LevelInfo
			if wrapped.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(context.Background(), level, "http_request", attrs...)
		})
	}
}
