package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
)

// ProvisioningServiceInterface defines the registration handshake
type ProvisioningServiceInterface interface {
	CreateUser(ctx context.Context, username, email, accountType string) (*services.CreateUserResult, error)
	CompleteAccount(ctx context.Context, nonceCiphertext, publicKeyPEM string) (*models.IssuedSession, error)
}

// LoginServiceInterface defines the challenge/response login
type LoginServiceInterface interface {
	GetLoginNonce(ctx context.Context, username, challengeCiphertext, signature, keyID string) (*services.LoginChallenge, error)
	CompleteLogin(ctx context.Context, nonceCiphertext, signature, userID, keyID string) (*models.IssuedSession, error)
}

// AuthHandler handles the public protocol endpoints
type AuthHandler struct {
	provisioning    ProvisioningServiceInterface
	login           LoginServiceInterface
	appPublicKeyPEM string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(provisioning ProvisioningServiceInterface, login LoginServiceInterface, appPublicKeyPEM string) *AuthHandler {
	return &AuthHandler{
		provisioning:    provisioning,
		login:           login,
		appPublicKeyPEM: appPublicKeyPEM,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,alphanum,min=3,max=75"`
	Email       string `json:"email" validate:"required,email,max=254"`
	AccountType string `json:"accountType,omitempty" validate:"omitempty,oneof=FREE PREMIUM BUSINESS"`
}

// CompleteAccountRequest carries the invite nonce re-encrypted to the
// application key and the registrant's first public key
type CompleteAccountRequest struct {
	Nonce     string `json:"nonce" validate:"required"`
	PublicKey string `json:"publicKey" validate:"required,pem_public_key"`
}

// LoginNonceRequest represents the first login round
type LoginNonceRequest struct {
	Username  string `json:"username" validate:"required"`
	Challenge string `json:"challenge" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	KeyID     string `json:"keyId,omitempty" validate:"omitempty,uuid"`
}

// CompleteLoginRequest represents the second login round
type CompleteLoginRequest struct {
	Nonce     string `json:"nonce" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	UserID    string `json:"userId" validate:"required,uuid"`
	KeyID     string `json:"keyId,omitempty" validate:"omitempty,uuid"`
}

// PublicKeyResponse carries the application public key
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// decodeAndValidate reads a JSON body into req and validates it. It writes the
// error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := pkghttp.DecodeJSON(w, r, req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Register handles user registration
// @Summary Register a user and issue an account invite
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.CreateUserResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.provisioning.CreateUser(r.Context(), req.Username, strings.ToLower(strings.TrimSpace(req.Email)), req.AccountType)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}

// CompleteAccount handles the provisioning handshake
// @Summary Complete a pending account and issue a session
// @Accept json
// @Param request body CompleteAccountRequest true "Completion request"
// @Produce json
// @Success 201 {object} models.IssuedSession
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/complete [post]
func (h *AuthHandler) CompleteAccount(w http.ResponseWriter, r *http.Request) {
	var req CompleteAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	issued, err := h.provisioning.CompleteAccount(r.Context(), req.Nonce, req.PublicKey)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, issued)
}

// GetLoginNonce handles the first login round
// @Summary Issue a login challenge response and nonce
// @Accept json
// @Param request body LoginNonceRequest true "Login nonce request"
// @Produce json
// @Success 200 {object} services.LoginChallenge
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/login/nonce [post]
func (h *AuthHandler) GetLoginNonce(w http.ResponseWriter, r *http.Request) {
	var req LoginNonceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	challenge, err := h.login.GetLoginNonce(r.Context(), req.Username, req.Challenge, req.Signature, req.KeyID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, challenge)
}

// CompleteLogin handles the second login round
// @Summary Complete a login and issue a session
// @Accept json
// @Param request body CompleteLoginRequest true "Login completion request"
// @Produce json
// @Success 200 {object} models.IssuedSession
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/login/complete [post]
func (h *AuthHandler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	var req CompleteLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	issued, err := h.login.CompleteLogin(r.Context(), req.Nonce, req.Signature, req.UserID, req.KeyID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, issued)
}

// PublicKey returns the application public key clients encrypt to
// @Router /auth/public-key [get]
func (h *AuthHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, PublicKeyResponse{PublicKey: h.appPublicKeyPEM})
}
