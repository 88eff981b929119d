package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// Transport headers of the session protocol
const (
	HeaderAuthorization = "Authorization"
	HeaderSignature     = "Signature"
	HeaderKeyID         = "Key-Id"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AuthContextKey is the key for storing the validated session in context
	AuthContextKey contextKey = "auth"
)

// SessionValidator resolves request credentials to a session
type SessionValidator interface {
	ValidateSession(ctx context.Context, creds Credentials) *models.AuthContext
}

// CredentialsFromRequest reads the protocol headers. A "Session " prefix on
// Authorization is tolerated.
func CredentialsFromRequest(r *http.Request) Credentials {
	authz := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	authz = strings.TrimSpace(strings.TrimPrefix(authz, "Session "))

	return Credentials{
		Authorization: authz,
		Signature:     strings.TrimSpace(r.Header.Get(HeaderSignature)),
		KeyID:         strings.TrimSpace(r.Header.Get(HeaderKeyID)),
	}
}

// SessionMiddleware rejects requests without a valid session and stores the
// validated session in the request context
func SessionMiddleware(validator SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromRequest(r)
			if creds.Authorization == "" || creds.Signature == "" {
				pkghttp.WriteUnauthorized(w, "missing session credentials")
				return
			}

			authCtx := validator.ValidateSession(r.Context(), creds)
			if authCtx == nil {
				pkghttp.WriteUnauthorized(w, "authentication failed")
				return
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccountOwner allows only the owner of the session's account through.
// Must be used after SessionMiddleware.
func RequireAccountOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthFromContext(r)
		if authCtx == nil {
			pkghttp.WriteUnauthorized(w, "authentication failed")
			return
		}
		if !authCtx.User.IsAccountOwner() {
			pkghttp.WriteServiceError(w, models.ErrNotAccountOwner)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetAuthFromContext extracts the validated session from the request context
func GetAuthFromContext(r *http.Request) *models.AuthContext {
	authCtx, ok := r.Context().Value(AuthContextKey).(*models.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// CheckAuth re-validates the request's session for a privileged action
func CheckAuth(r *http.Request) (*models.AuthContext, error) {
	authCtx := GetAuthFromContext(r)
	if err := authCtx.Check(time.Now()); err != nil {
		return nil, err
	}
	return authCtx, nil
}
