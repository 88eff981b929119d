package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// AccountServiceInterface defines account management
type AccountServiceInterface interface {
	GetAccount(ctx context.Context, accountID string) (*services.AccountDetails, error)
	ListAccountTypes(ctx context.Context) ([]*models.AccountType, error)
	ChangeAccountType(ctx context.Context, actor *models.User, accountType string) (*models.Account, error)
	DeleteAccount(ctx context.Context, actor *models.User) (*models.Account, error)
}

// AccountHandler handles account HTTP requests
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// ChangeAccountTypeRequest selects a new tier
type ChangeAccountTypeRequest struct {
	AccountType string `json:"accountType" validate:"required,oneof=FREE PREMIUM BUSINESS"`
}

// AccountTypesResponse lists the tiers
type AccountTypesResponse struct {
	AccountTypes []*models.AccountType `json:"accountTypes"`
}

// Get returns the session user's account
// @Router /account [get]
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	details, err := h.service.GetAccount(r.Context(), authCtx.User.AccountID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, details)
}

// ListTypes returns the available tiers
// @Router /account-types [get]
func (h *AccountHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListAccountTypes(r.Context())
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AccountTypesResponse{AccountTypes: types})
}

// ChangeType moves the account to another tier
// @Router /account/type [put]
func (h *AccountHandler) ChangeType(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	var req ChangeAccountTypeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.service.ChangeAccountType(r.Context(), authCtx.User, req.AccountType)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account)
}

// Delete soft deletes the account
// @Router /account [delete]
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.CheckAuth(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	account, err := h.service.DeleteAccount(r.Context(), authCtx.User)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account)
}
