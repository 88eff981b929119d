package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/BradenHooton/lockbox/pkg/logger"
)

// Session lifetime bounds. Requested expiries are clamped into
// [now+MinSessionTTL, now+maxTTL].
const (
	MinSessionTTL = 30 * time.Minute
	MaxSessionTTL = 24 * time.Hour
)

// SessionRepository persists sessions
type SessionRepository interface {
	Create(ctx context.Context, session *models.AuthSession) (*models.AuthSession, error)
	GetByID(ctx context.Context, id string) (*models.AuthSession, error)
}

// UserRepository interface for fetching user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AccountRepository interface for fetching account data
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// KeyLister lists a user's public keys in insertion order
type KeyLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error)
}

// Credentials are the transport values carried by every privileged call
type Credentials struct {
	Authorization string // base64 RSA ciphertext of the session id
	Signature     string // base64 sealed hash(userId+nonce)
	KeyID         string // optional key selector
}

// SessionConfig holds session lifetimes
type SessionConfig struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// SessionManager issues and validates sessions bound to a user's keypair
type SessionManager struct {
	sessions SessionRepository
	users    UserRepository
	accounts AccountRepository
	keys     KeyLister
	appKeys  *cryptox.KeyService
	vault    *cryptox.Vault
	audit    *logger.AuditLogger
	logger   *slog.Logger
	cfg      SessionConfig
	now      func() time.Time
}

func NewSessionManager(
	sessions SessionRepository,
	users UserRepository,
	accounts AccountRepository,
	keys KeyLister,
	appKeys *cryptox.KeyService,
	vault *cryptox.Vault,
	audit *logger.AuditLogger,
	logger *slog.Logger,
	cfg SessionConfig,
) *SessionManager {
	if cfg.MaxTTL <= 0 || cfg.MaxTTL > MaxSessionTTL {
		cfg.MaxTTL = MaxSessionTTL
	}
	if cfg.DefaultTTL < MinSessionTTL || cfg.DefaultTTL > cfg.MaxTTL {
		cfg.DefaultTTL = MinSessionTTL
	}

	return &SessionManager{
		sessions: sessions,
		users:    users,
		accounts: accounts,
		keys:     keys,
		appKeys:  appKeys,
		vault:    vault,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ExpiryFor returns the session expiry for a requested value
func (m *SessionManager) ExpiryFor(now time.Time, requested *time.Time) time.Time {
	if requested == nil {
		return now.Add(m.cfg.DefaultTTL)
	}

	lower := now.Add(MinSessionTTL)
	upper := now.Add(m.cfg.MaxTTL)
	switch {
	case requested.Before(lower):
		return lower
	case requested.After(upper):
		return upper
	default:
		return *requested
	}
}

// CreateSession persists a new session for user. The session id and nonce
// are returned encrypted with publicKeyPEM and base64 encoded.
func (m *SessionManager) CreateSession(ctx context.Context, user *models.User, publicKeyPEM string, requestedExpiry *time.Time) (*models.IssuedSession, error) {
	pub, err := cryptox.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, models.ErrInvalidPublicKey
	}

	nonce, err := cryptox.RandomToken(cryptox.MinTokenBytes)
	if err != nil {
		m.logger.Error("failed to generate session nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sealedNonce, err := m.vault.Protect([]byte(nonce))
	if err != nil {
		m.logger.Error("failed to encrypt session nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session, err := m.sessions.Create(ctx, &models.AuthSession{
		UserID:    user.ID,
		Nonce:     sealedNonce,
		ExpiresAt: m.ExpiryFor(m.now(), requestedExpiry),
	})
	if err != nil {
		m.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encID, err := cryptox.EncryptWithPublicKey(pub, []byte(session.ID))
	if err != nil {
		m.logger.Error("failed to encrypt session id", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	encNonce, err := cryptox.EncryptWithPublicKey(pub, []byte(nonce))
	if err != nil {
		m.logger.Error("failed to encrypt session nonce for transport", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	m.audit.Success(ctx, logger.EventSessionIssued, user.ID, map[string]string{
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})

	return &models.IssuedSession{
		SessionID: cryptox.EncodeToken(encID),
		Nonce:     cryptox.EncodeToken(encNonce),
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// ValidateSession resolves credentials to a populated session. It returns
// nil on any failure; the reason is only logged.
func (m *SessionManager) ValidateSession(ctx context.Context, creds Credentials) *models.AuthContext {
	authCtx, err := m.validate(ctx, creds)
	if err != nil {
		userID := ""
		if authCtx != nil && authCtx.User != nil {
			userID = authCtx.User.ID
		}
		m.audit.Failure(ctx, logger.EventSessionRejected, userID, models.CodeOf(err))
		m.logger.Debug("session rejected", slog.String("reason", err.Error()))
		return nil
	}
	return authCtx
}

// validate returns the partially populated context alongside any error so
// rejections can be attributed to a user
func (m *SessionManager) validate(ctx context.Context, creds Credentials) (*models.AuthContext, error) {
	if creds.Authorization == "" || creds.Signature == "" {
		return nil, models.ErrNotAuthenticated
	}

	rawID, err := m.appKeys.DecryptToken(creds.Authorization)
	if err != nil {
		return nil, models.ErrDecryptionFailed
	}

	session, err := m.sessions.GetByID(ctx, string(rawID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	authCtx := &models.AuthContext{Session: session}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, models.ErrUserNotFound
	}
	authCtx.User = user

	account, err := m.accounts.GetByID(ctx, user.AccountID)
	if err != nil {
		return authCtx, models.ErrAccountNotFound
	}
	authCtx.Account = account
	if !account.IsActive() {
		return authCtx, models.ErrAccountNotActive
	}

	nonce, err := m.vault.Reveal(session.Nonce)
	if err != nil {
		return authCtx, models.ErrDecryptionFailed
	}

	keys, err := m.keys.ListByOwner(ctx, user.ID)
	if err != nil {
		return authCtx, models.ErrPublicKeyNotFound
	}
	authCtx.Keys = keys

	key, err := models.SelectKey(keys, creds.KeyID)
	if err != nil {
		return authCtx, err
	}
	authCtx.Key = key

	pub, err := cryptox.ParsePublicKeyPEM(key.Key)
	if err != nil {
		return authCtx, models.ErrInvalidPublicKey
	}

	sig, err := cryptox.DecodeToken(creds.Signature)
	if err != nil {
		return authCtx, models.ErrSignatureVerificationFailed
	}
	if !cryptox.OpenMatches(pub, sig, []byte(cryptox.HashHex(user.ID, string(nonce)))) {
		return authCtx, models.ErrSignatureVerificationFailed
	}

	if !m.now().Before(session.ExpiresAt) {
		return authCtx, models.ErrSessionExpired
	}

	return authCtx, nil
}
