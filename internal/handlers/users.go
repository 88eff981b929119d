package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// UserServiceInterface defines the interface for user lookups
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*services.Profile, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Me returns the session user's profile
// @Summary Get current user
// @Produce json
// @Success 200 {object} services.Profile
// @Failure 401 {object} ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), authCtx.User.ID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}
