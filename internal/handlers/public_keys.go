package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/go-chi/chi/v5"
)

// PublicKeyServiceInterface defines public key management
type PublicKeyServiceInterface interface {
	Add(ctx context.Context, in services.AddPublicKeyInput) (*services.AddPublicKeyResult, error)
	Update(ctx context.Context, keyID, ownerID string, upd models.PublicKeyUpdate) (*models.PublicKey, error)
	Remove(ctx context.Context, keyID, ownerID string) (*models.PublicKey, error)
	ListForOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error)
	AuthorizeOwner(ctx context.Context, actor *models.User, ownerID string) error
}

// PublicKeyHandler handles public key HTTP requests
type PublicKeyHandler struct {
	service PublicKeyServiceInterface
}

// NewPublicKeyHandler creates a new PublicKeyHandler
func NewPublicKeyHandler(service PublicKeyServiceInterface) *PublicKeyHandler {
	return &PublicKeyHandler{service: service}
}

// AddPublicKeyRequest represents the request body for registering a key.
// OwnerID lets an account owner manage a sub-user's keys.
type AddPublicKeyRequest struct {
	Key         string     `json:"key" validate:"required,pem_public_key"`
	Label       *string    `json:"label,omitempty" validate:"omitempty,max=100,key_text"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500,key_text"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" validate:"omitempty,future"`
	Default     bool       `json:"default"`
	OwnerID     string     `json:"ownerId,omitempty" validate:"omitempty,uuid"`
}

// UpdatePublicKeyRequest represents a partial key update
type UpdatePublicKeyRequest struct {
	Key         *string    `json:"key,omitempty" validate:"omitempty,pem_public_key"`
	Label       *string    `json:"label,omitempty" validate:"omitempty,max=100,key_text"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500,key_text"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" validate:"omitempty,future"`
	Default     *bool      `json:"default,omitempty"`
}

// PublicKeysResponse lists an owner's keys
type PublicKeysResponse struct {
	Keys []*models.PublicKey `json:"keys"`
}

// ownerFor resolves the key owner a request acts on: the session user, or
// the owner_id query parameter when the session user may manage it
func (h *PublicKeyHandler) ownerFor(r *http.Request, actor *models.User, requested string) (string, error) {
	if requested == "" {
		requested = r.URL.Query().Get("owner_id")
	}
	if requested == "" {
		return actor.ID, nil
	}
	if err := h.service.AuthorizeOwner(r.Context(), actor, requested); err != nil {
		return "", err
	}
	return requested, nil
}

// List returns the keys of the session user
// @Router /public-keys [get]
func (h *PublicKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	ownerID, err := h.ownerFor(r, authCtx.User, "")
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	keys, err := h.service.ListForOwner(r.Context(), ownerID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PublicKeysResponse{Keys: keys})
}

// Add registers a new public key
// @Accept json
// @Param request body AddPublicKeyRequest true "Key"
// @Success 201 {object} services.AddPublicKeyResult
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /public-keys [post]
func (h *PublicKeyHandler) Add(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	var req AddPublicKeyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ownerID, err := h.ownerFor(r, authCtx.User, req.OwnerID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	result, err := h.service.Add(r.Context(), services.AddPublicKeyInput{
		OwnerID:     ownerID,
		Key:         req.Key,
		Label:       req.Label,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		MakeDefault: req.Default,
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}

// Update modifies a key
// @Router /public-keys/{id} [put]
func (h *PublicKeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	var req UpdatePublicKeyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ownerID, err := h.ownerFor(r, authCtx.User, "")
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	key, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), ownerID, models.PublicKeyUpdate{
		Key:         req.Key,
		Label:       req.Label,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		IsDefault:   req.Default,
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, key)
}

// Delete removes a key
// @Router /public-keys/{id} [delete]
func (h *PublicKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	ownerID, err := h.ownerFor(r, authCtx.User, "")
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	key, err := h.service.Remove(r.Context(), chi.URLParam(r, "id"), ownerID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, key)
}
