package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/handlers"
	"github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSessions accepts the session "good-<role>" with any signature
type stubSessions struct{}

func (stubSessions) ValidateSession(ctx context.Context, creds auth.Credentials) *models.AuthContext {
	role := ""
	switch creds.Authorization {
	case "good-owner":
		role = models.RoleAccountOwner
	case "good-sub":
		role = models.RoleSubUser
	default:
		return nil
	}
	return &models.AuthContext{
		Session: &models.AuthSession{ID: "s", UserID: "u-" + role, ExpiresAt: time.Now().Add(time.Hour)},
		User:    &models.User{ID: "u-" + role, Role: role, AccountID: "a"},
		Account: &models.Account{ID: "a", Status: models.AccountStatusActive},
	}
}

type stubProfiles struct{}

func (stubProfiles) GetProfile(ctx context.Context, userID string) (*services.Profile, error) {
	return &services.Profile{User: &models.User{ID: userID}}, nil
}

func newRouter() chi.Router {
	router := chi.NewRouter()
	RegisterRoutes(router, Handlers{
		Auth:       handlers.NewAuthHandler(nil, nil, "app-public-key"),
		PublicKeys: handlers.NewPublicKeyHandler(nil),
		Accounts:   handlers.NewAccountHandler(nil),
		Users:      handlers.NewUserHandler(stubProfiles{}),
	}, stubSessions{},
		middleware.RateLimitConfig{RequestsPerMinute: 100},
		middleware.RateLimitConfig{RequestsPerMinute: 100},
	)
	return router
}

func serve(router chi.Router, method, path, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.20:1000"
	if session != "" {
		req.Header.Set(auth.HeaderAuthorization, session)
		req.Header.Set(auth.HeaderSignature, "sig")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutes_PublicKeyIsPublic(t *testing.T) {
	w := serve(newRouter(), http.MethodGet, "/auth/public-key", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.PublicKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "app-public-key", resp.PublicKey)
}

func TestRoutes_ProtectedRequireSession(t *testing.T) {
	router := newRouter()

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users/me"},
		{http.MethodGet, "/public-keys"},
		{http.MethodPost, "/public-keys"},
		{http.MethodPut, "/public-keys/some-id"},
		{http.MethodDelete, "/public-keys/some-id"},
		{http.MethodGet, "/account"},
		{http.MethodPut, "/account/type"},
		{http.MethodDelete, "/account"},
	}

	for _, route := range protected {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			for _, session := range []string{"", "forged"} {
				w := serve(router, route.method, route.path, session)
				assert.Equal(t, http.StatusUnauthorized, w.Code, "session %q", session)

				var resp pkghttp.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "NOT_AUTHENTICATED", resp.Error)
			}
		})
	}
}

func TestRoutes_SessionReachesHandler(t *testing.T) {
	w := serve(newRouter(), http.MethodGet, "/users/me", "good-sub")

	require.Equal(t, http.StatusOK, w.Code)
	var resp services.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u-"+models.RoleSubUser, resp.User.ID)
}

func TestRoutes_OwnerOnly(t *testing.T) {
	router := newRouter()

	for _, path := range []string{"/account/type", "/account"} {
		method := http.MethodDelete
		if path == "/account/type" {
			method = http.MethodPut
		}
		w := serve(router, method, path, "good-sub")
		assert.Equal(t, http.StatusForbidden, w.Code, path)

		var resp pkghttp.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "NOT_ACCOUNT_OWNER", resp.Error)
	}
}
