package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID    = "0b6f6b52-3c57-4d3c-9a43-4f3f0fbb2b10"
	testAccountID = "5d1e3f1a-8f0b-4a7e-b1f5-7b8c1a2d9e34"
	testKeyID     = "9a2c4e6f-1b3d-4f5a-8c7e-0d2f4b6a8c1e"
)

var (
	pemOnce sync.Once
	pemText string
)

// testPublicKeyPEM returns a PEM encoded 2048-bit key generated once per run
func testPublicKeyPEM(t *testing.T) string {
	t.Helper()
	pemOnce.Do(func() {
		pair, err := cryptox.GenerateKeyPair(cryptox.MinKeyBits)
		if err != nil {
			return
		}
		pemText, _ = pair.PublicPEM()
	})
	require.NotEmpty(t, pemText, "failed to generate test key")
	return pemText
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func testAuthContext(role, status string, expiresAt time.Time) *models.AuthContext {
	return &models.AuthContext{
		Session: &models.AuthSession{ID: "session", UserID: testUserID, ExpiresAt: expiresAt},
		User:    &models.User{ID: testUserID, Username: "alice", Role: role, AccountID: testAccountID},
		Account: &models.Account{ID: testAccountID, OwnerID: testUserID, Status: status, AccountType: models.AccountTypeFree},
	}
}

// WithAuthContext adds an active account owner session to the request
func WithAuthContext(req *http.Request) *http.Request {
	return WithSession(req, testAuthContext(models.RoleAccountOwner, models.AccountStatusActive, time.Now().Add(time.Hour)))
}

// WithSession adds authCtx to the request as SessionMiddleware would
func WithSession(req *http.Request, authCtx *models.AuthContext) *http.Request {
	ctx := context.WithValue(req.Context(), auth.AuthContextKey, authCtx)
	return req.WithContext(ctx)
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockProvisioningService implements ProvisioningServiceInterface for testing
type MockProvisioningService struct {
	CreateUserFunc      func(ctx context.Context, username, email, accountType string) (*services.CreateUserResult, error)
	CompleteAccountFunc func(ctx context.Context, nonceCiphertext, publicKeyPEM string) (*models.IssuedSession, error)
}

func (m *MockProvisioningService) CreateUser(ctx context.Context, username, email, accountType string) (*services.CreateUserResult, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, username, email, accountType)
	}
	return nil, models.ErrInternalServer
}

func (m *MockProvisioningService) CompleteAccount(ctx context.Context, nonceCiphertext, publicKeyPEM string) (*models.IssuedSession, error) {
	if m.CompleteAccountFunc != nil {
		return m.CompleteAccountFunc(ctx, nonceCiphertext, publicKeyPEM)
	}
	return nil, models.ErrInternalServer
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	GetLoginNonceFunc func(ctx context.Context, username, challengeCiphertext, signature, keyID string) (*services.LoginChallenge, error)
	CompleteLoginFunc func(ctx context.Context, nonceCiphertext, signature, userID, keyID string) (*models.IssuedSession, error)
}

func (m *MockLoginService) GetLoginNonce(ctx context.Context, username, challengeCiphertext, signature, keyID string) (*services.LoginChallenge, error) {
	if m.GetLoginNonceFunc != nil {
		return m.GetLoginNonceFunc(ctx, username, challengeCiphertext, signature, keyID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockLoginService) CompleteLogin(ctx context.Context, nonceCiphertext, signature, userID, keyID string) (*models.IssuedSession, error) {
	if m.CompleteLoginFunc != nil {
		return m.CompleteLoginFunc(ctx, nonceCiphertext, signature, userID, keyID)
	}
	return nil, models.ErrInternalServer
}

// MockPublicKeyService implements PublicKeyServiceInterface for testing
type MockPublicKeyService struct {
	AddFunc            func(ctx context.Context, in services.AddPublicKeyInput) (*services.AddPublicKeyResult, error)
	UpdateFunc         func(ctx context.Context, keyID, ownerID string, upd models.PublicKeyUpdate) (*models.PublicKey, error)
	RemoveFunc         func(ctx context.Context, keyID, ownerID string) (*models.PublicKey, error)
	ListForOwnerFunc   func(ctx context.Context, ownerID string) ([]*models.PublicKey, error)
	AuthorizeOwnerFunc func(ctx context.Context, actor *models.User, ownerID string) error
}

func (m *MockPublicKeyService) Add(ctx context.Context, in services.AddPublicKeyInput) (*services.AddPublicKeyResult, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPublicKeyService) Update(ctx context.Context, keyID, ownerID string, upd models.PublicKeyUpdate) (*models.PublicKey, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, keyID, ownerID, upd)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPublicKeyService) Remove(ctx context.Context, keyID, ownerID string) (*models.PublicKey, error) {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, keyID, ownerID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPublicKeyService) ListForOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
	if m.ListForOwnerFunc != nil {
		return m.ListForOwnerFunc(ctx, ownerID)
	}
	return []*models.PublicKey{}, nil
}

func (m *MockPublicKeyService) AuthorizeOwner(ctx context.Context, actor *models.User, ownerID string) error {
	if m.AuthorizeOwnerFunc != nil {
		return m.AuthorizeOwnerFunc(ctx, actor, ownerID)
	}
	return models.ErrNotAccountOwner
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	GetAccountFunc        func(ctx context.Context, accountID string) (*services.AccountDetails, error)
	ListAccountTypesFunc  func(ctx context.Context) ([]*models.AccountType, error)
	ChangeAccountTypeFunc func(ctx context.Context, actor *models.User, accountType string) (*models.Account, error)
	DeleteAccountFunc     func(ctx context.Context, actor *models.User) (*models.Account, error)
}

func (m *MockAccountService) GetAccount(ctx context.Context, accountID string) (*services.AccountDetails, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, accountID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) ListAccountTypes(ctx context.Context) ([]*models.AccountType, error) {
	if m.ListAccountTypesFunc != nil {
		return m.ListAccountTypesFunc(ctx)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) ChangeAccountType(ctx context.Context, actor *models.User, accountType string) (*models.Account, error) {
	if m.ChangeAccountTypeFunc != nil {
		return m.ChangeAccountTypeFunc(ctx, actor, accountType)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) DeleteAccount(ctx context.Context, actor *models.User) (*models.Account, error) {
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx, actor)
	}
	return nil, models.ErrInternalServer
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetProfileFunc func(ctx context.Context, userID string) (*services.Profile, error)
}

func (m *MockUserService) GetProfile(ctx context.Context, userID string) (*services.Profile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}
