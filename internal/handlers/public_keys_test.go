package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subUserID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestPublicKeyHandler_List(t *testing.T) {
	keys := []*models.PublicKey{
		{ID: testKeyID, OwnerID: testUserID, IsDefault: true},
	}

	t.Run("own keys", func(t *testing.T) {
		var gotOwner string
		svc := &MockPublicKeyService{
			ListForOwnerFunc: func(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
				gotOwner = ownerID
				return keys, nil
			},
		}
		handler := NewPublicKeyHandler(svc)

		w := httptest.NewRecorder()
		handler.List(w, WithAuthContext(httptest.NewRequest(http.MethodGet, "/public-keys", nil)))

		var resp PublicKeysResponse
		AssertJSONResponse(t, w, http.StatusOK, &resp)
		require.Len(t, resp.Keys, 1)
		assert.Equal(t, testKeyID, resp.Keys[0].ID)
		assert.Equal(t, testUserID, gotOwner)
	})

	t.Run("sub-user keys", func(t *testing.T) {
		var gotOwner string
		svc := &MockPublicKeyService{
			AuthorizeOwnerFunc: func(ctx context.Context, actor *models.User, ownerID string) error {
				return nil
			},
			ListForOwnerFunc: func(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
				gotOwner = ownerID
				return []*models.PublicKey{}, nil
			},
		}
		handler := NewPublicKeyHandler(svc)

		w := httptest.NewRecorder()
		handler.List(w, WithAuthContext(httptest.NewRequest(http.MethodGet, "/public-keys?owner_id="+subUserID, nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, subUserID, gotOwner)
	})

	t.Run("foreign owner", func(t *testing.T) {
		handler := NewPublicKeyHandler(&MockPublicKeyService{})

		w := httptest.NewRecorder()
		handler.List(w, WithAuthContext(httptest.NewRequest(http.MethodGet, "/public-keys?owner_id="+subUserID, nil)))

		AssertErrorResponse(t, w, http.StatusForbidden, "NOT_ACCOUNT_OWNER")
	})
}

func TestPublicKeyHandler_SessionChecks(t *testing.T) {
	tests := []struct {
		name           string
		authCtx        *models.AuthContext
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "no session",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "NOT_AUTHENTICATED",
		},
		{
			name:           "expired session",
			authCtx:        testAuthContext(models.RoleAccountOwner, models.AccountStatusActive, time.Now().Add(-time.Minute)),
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "SESSION_EXPIRED",
		},
		{
			name:           "suspended account",
			authCtx:        testAuthContext(models.RoleAccountOwner, models.AccountStatusSuspended, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusForbidden,
			expectedError:  "ACCOUNT_NOT_ACTIVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPublicKeyService{
				ListForOwnerFunc: func(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
					t.Fatal("service must not be reached")
					return nil, nil
				},
			}
			handler := NewPublicKeyHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/public-keys", nil)
			if tt.authCtx != nil {
				req = WithSession(req, tt.authCtx)
			}

			w := httptest.NewRecorder()
			handler.List(w, req)

			AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
		})
	}
}

func TestPublicKeyHandler_Add(t *testing.T) {
	pemKey := testPublicKeyPEM(t)
	label := "laptop"
	badLabel := "laptop<script>"
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name           string
		body           AddPublicKeyRequest
		addErr         error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "success",
			body:           AddPublicKeyRequest{Key: pemKey, Label: &label, ExpiresAt: &future, Default: true},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing key",
			body:           AddPublicKeyRequest{Label: &label},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "BAD_REQUEST",
		},
		{
			name:           "label with markup",
			body:           AddPublicKeyRequest{Key: pemKey, Label: &badLabel},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "BAD_REQUEST",
		},
		{
			name:           "expiry in the past",
			body:           AddPublicKeyRequest{Key: pemKey, ExpiresAt: &past},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "BAD_REQUEST",
		},
		{
			name:           "quota reached",
			body:           AddPublicKeyRequest{Key: pemKey},
			addErr:         models.ErrMaxPublicKeysReached,
			expectedStatus: http.StatusForbidden,
			expectedError:  "MAX_PUBLIC_KEYS_REACHED",
		},
		{
			name:           "duplicate key",
			body:           AddPublicKeyRequest{Key: pemKey},
			addErr:         models.ErrDuplicatePublicKey,
			expectedStatus: http.StatusConflict,
			expectedError:  "DUPLICATE_PUBLIC_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPublicKeyService{
				AddFunc: func(ctx context.Context, in services.AddPublicKeyInput) (*services.AddPublicKeyResult, error) {
					if tt.addErr != nil {
						return nil, tt.addErr
					}
					assert.Equal(t, testUserID, in.OwnerID)
					assert.Equal(t, tt.body.Default, in.MakeDefault)
					return &services.AddPublicKeyResult{
						User:       &models.User{ID: in.OwnerID},
						Keys:       []*models.PublicKey{{ID: testKeyID, OwnerID: in.OwnerID, Label: in.Label}},
						AddedKeyID: testKeyID,
					}, nil
				},
			}
			handler := NewPublicKeyHandler(svc)

			w := httptest.NewRecorder()
			handler.Add(w, WithAuthContext(NewTestRequest(t, http.MethodPost, "/public-keys", tt.body)))

			if tt.expectedError != "" {
				AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				return
			}

			var resp services.AddPublicKeyResult
			AssertJSONResponse(t, w, tt.expectedStatus, &resp)
			assert.Equal(t, testKeyID, resp.AddedKeyID)
			require.Len(t, resp.Keys, 1)
		})
	}
}

func TestPublicKeyHandler_Add_ForSubUser(t *testing.T) {
	var authorized bool
	svc := &MockPublicKeyService{
		AuthorizeOwnerFunc: func(ctx context.Context, actor *models.User, ownerID string) error {
			authorized = actor.ID == testUserID && ownerID == subUserID
			return nil
		},
		AddFunc: func(ctx context.Context, in services.AddPublicKeyInput) (*services.AddPublicKeyResult, error) {
			assert.Equal(t, subUserID, in.OwnerID)
			return &services.AddPublicKeyResult{User: &models.User{ID: in.OwnerID}, AddedKeyID: testKeyID}, nil
		},
	}
	handler := NewPublicKeyHandler(svc)

	body := AddPublicKeyRequest{Key: testPublicKeyPEM(t), OwnerID: subUserID}
	w := httptest.NewRecorder()
	handler.Add(w, WithAuthContext(NewTestRequest(t, http.MethodPost, "/public-keys", body)))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, authorized)
}

func TestPublicKeyHandler_Update(t *testing.T) {
	isDefault := false
	label := "desktop"

	tests := []struct {
		name           string
		body           UpdatePublicKeyRequest
		updateErr      error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "relabel",
			body:           UpdatePublicKeyRequest{Label: &label},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unset default",
			body:           UpdatePublicKeyRequest{Default: &isDefault},
			updateErr:      models.ErrCannotUnsetDefaultKey,
			expectedStatus: http.StatusForbidden,
			expectedError:  "CANNOT_UNSET_DEFAULT_KEY",
		},
		{
			name:           "empty update",
			body:           UpdatePublicKeyRequest{},
			updateErr:      models.ErrNoFieldsToUpdate,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "NO_FIELDS_TO_UPDATE",
		},
		{
			name:           "unknown key",
			body:           UpdatePublicKeyRequest{Label: &label},
			updateErr:      models.ErrPublicKeyNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "PUBLIC_KEY_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPublicKeyService{
				UpdateFunc: func(ctx context.Context, keyID, ownerID string, upd models.PublicKeyUpdate) (*models.PublicKey, error) {
					assert.Equal(t, testKeyID, keyID)
					assert.Equal(t, testUserID, ownerID)
					if tt.updateErr != nil {
						return nil, tt.updateErr
					}
					return &models.PublicKey{ID: keyID, OwnerID: ownerID, Label: upd.Label}, nil
				},
			}
			handler := NewPublicKeyHandler(svc)

			req := WithAuthContext(NewTestRequest(t, http.MethodPut, "/public-keys/"+testKeyID, tt.body))
			req = WithURLParam(req, "id", testKeyID)

			w := httptest.NewRecorder()
			handler.Update(w, req)

			if tt.expectedError != "" {
				AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				return
			}

			var resp models.PublicKey
			AssertJSONResponse(t, w, tt.expectedStatus, &resp)
			require.NotNil(t, resp.Label)
			assert.Equal(t, label, *resp.Label)
		})
	}
}

func TestPublicKeyHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		removeErr      error
		expectedStatus int
		expectedError  string
	}{
		{name: "success", expectedStatus: http.StatusOK},
		{
			name:           "default key",
			removeErr:      models.ErrCannotDeleteDefaultKey,
			expectedStatus: http.StatusForbidden,
			expectedError:  "CANNOT_DELETE_DEFAULT_KEY",
		},
		{
			name:           "unknown key",
			removeErr:      models.ErrPublicKeyNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "PUBLIC_KEY_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPublicKeyService{
				RemoveFunc: func(ctx context.Context, keyID, ownerID string) (*models.PublicKey, error) {
					if tt.removeErr != nil {
						return nil, tt.removeErr
					}
					return &models.PublicKey{ID: keyID, OwnerID: ownerID}, nil
				},
			}
			handler := NewPublicKeyHandler(svc)

			req := WithAuthContext(httptest.NewRequest(http.MethodDelete, "/public-keys/"+testKeyID, nil))
			req = WithURLParam(req, "id", testKeyID)

			w := httptest.NewRecorder()
			handler.Delete(w, req)

			if tt.expectedError != "" {
				AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				return
			}

			var resp models.PublicKey
			AssertJSONResponse(t, w, tt.expectedStatus, &resp)
			assert.Equal(t, testKeyID, resp.ID)
		})
	}
}
