package routes

import (
	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/handlers"
	"github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers the router serves
type Handlers struct {
	Auth       *handlers.AuthHandler
	PublicKeys *handlers.PublicKeyHandler
	Accounts   *handlers.AccountHandler
	Users      *handlers.UserHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	sessions auth.SessionValidator,
	authLimit middleware.RateLimitConfig,
	apiLimit middleware.RateLimitConfig,
) {
	// Public protocol endpoints, rate limited per client and endpoint
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authLimit))

		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/complete", h.Auth.CompleteAccount)
		r.Post("/auth/login/nonce", h.Auth.GetLoginNonce)
		r.Post("/auth/login/complete", h.Auth.CompleteLogin)
	})

	router.Get("/auth/public-key", h.Auth.PublicKey)
	router.Get("/account-types", h.Accounts.ListTypes)

	// Session protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sessions))
		r.Use(middleware.RateLimitBySession(apiLimit))

		r.Get("/users/me", h.Users.Me)

		r.Get("/public-keys", h.PublicKeys.List)
		r.Post("/public-keys", h.PublicKeys.Add)
		r.Put("/public-keys/{id}", h.PublicKeys.Update)
		r.Delete("/public-keys/{id}", h.PublicKeys.Delete)

		r.Get("/account", h.Accounts.Get)

		// Account owner only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAccountOwner)
			r.Put("/account/type", h.Accounts.ChangeType)
			r.Delete("/account", h.Accounts.Delete)
		})
	})
}
