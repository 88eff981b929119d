package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/BradenHooton/lockbox/pkg/logger"
)

// MaxAccountInviteTTL is the exclusive upper bound of an invite lifetime
const MaxAccountInviteTTL = 48 * time.Hour

// CreateUserResult is returned by CreateUser. InviteToken is the invite
// nonce sealed with the application key, base64 encoded.
type CreateUserResult struct {
	User            *models.User `json:"user"`
	InviteToken     string       `json:"inviteToken"`
	InviteExpiresAt time.Time    `json:"inviteExpiresAt"`
}

// ProvisioningConfig configures registration
type ProvisioningConfig struct {
	InviteTTL          time.Duration
	DefaultAccountType string
}

// ProvisioningService registers users through a single-use invite handshake
type ProvisioningService struct {
	users    UserRepository
	accounts AccountRepository
	invites  AccountInviteRepository
	keys     *PublicKeyService
	sessions SessionIssuer
	appKeys  *cryptox.KeyService
	mailer   InviteMailer
	audit    *logger.AuditLogger
	logger   *slog.Logger
	cfg      ProvisioningConfig
}

func NewProvisioningService(
	users UserRepository,
	accounts AccountRepository,
	invites AccountInviteRepository,
	keys *PublicKeyService,
	sessions SessionIssuer,
	appKeys *cryptox.KeyService,
	mailer InviteMailer,
	audit *logger.AuditLogger,
	logger *slog.Logger,
	cfg ProvisioningConfig,
) *ProvisioningService {
	if cfg.InviteTTL <= 0 || cfg.InviteTTL >= MaxAccountInviteTTL {
		cfg.InviteTTL = 24 * time.Hour
	}
	if cfg.DefaultAccountType == "" {
		cfg.DefaultAccountType = models.AccountTypeFree
	}

	return &ProvisioningService{
		users:    users,
		accounts: accounts,
		invites:  invites,
		keys:     keys,
		sessions: sessions,
		appKeys:  appKeys,
		mailer:   mailer,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateUser registers a user with a PENDING account and issues the invite
// token that completes it. accountType may be empty for the default tier.
func (s *ProvisioningService) CreateUser(ctx context.Context, username, email, accountType string) (*CreateUserResult, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if accountType == "" {
		accountType = s.cfg.DefaultAccountType
	}
	if _, err := s.accounts.GetAccountType(ctx, accountType); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidAccountType
		}
		return nil, coded(s.logger, err, "failed to get account type", slog.String("account_type", accountType))
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrUsernameTaken
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, coded(s.logger, err, "failed to look up username")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrEmailTaken
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, coded(s.logger, err, "failed to look up email")
	}

	nonce, err := cryptox.RandomToken(cryptox.MinTokenBytes)
	if err != nil {
		s.logger.Error("failed to generate invite nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sealed, err := s.appKeys.Seal([]byte(nonce))
	if err != nil {
		s.logger.Error("failed to seal invite nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, _, err := s.users.CreateWithAccount(ctx,
		&models.User{Username: username, Email: email, Role: models.RoleAccountOwner},
		&models.Account{Status: models.AccountStatusPending, AccountType: accountType},
	)
	if err != nil {
		return nil, coded(s.logger, err, "failed to create user")
	}

	invite, err := s.invites.Create(ctx, &models.AccountInvite{
		NonceHash: cryptox.HashHex(nonce),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.cfg.InviteTTL),
	})
	if err != nil {
		// every PENDING user holds an invite
		if derr := s.users.DeletePending(context.WithoutCancel(ctx), user.ID); derr != nil {
			s.logger.Error("failed to roll back pending user", slog.String("user_id", user.ID), slog.Any("error", derr))
		}
		return nil, coded(s.logger, err, "failed to create account invite", slog.String("user_id", user.ID))
	}

	token := cryptox.EncodeToken(sealed)
	if s.mailer != nil {
		if err := s.mailer.SendAccountInvite(ctx, user.Email, user.Username, token, invite.ExpiresAt); err != nil {
			s.logger.Warn("failed to deliver account invite",
				slog.String("user_id", user.ID),
				slog.String("email", logger.SanitizedEmail(user.Email)),
				slog.Any("error", err))
		}
	}

	s.audit.Success(ctx, logger.EventUserCreated, user.ID, map[string]string{
		"account_type": accountType,
	})

	return &CreateUserResult{
		User:            user,
		InviteToken:     token,
		InviteExpiresAt: invite.ExpiresAt,
	}, nil
}

// CompleteAccount consumes the invite whose nonce was re-encrypted to the
// application key, registers the user's first public key, activates the
// account, and issues a session bound to that key. A found invite is deleted
// before any other step, so it is consumed whatever the outcome.
func (s *ProvisioningService) CompleteAccount(ctx context.Context, nonceCiphertext, publicKeyPEM string) (*models.IssuedSession, error) {
	if nonceCiphertext == "" || publicKeyPEM == "" {
		return nil, models.ErrMissingField
	}

	nonce, err := s.appKeys.DecryptToken(nonceCiphertext)
	if err != nil {
		s.audit.Failure(ctx, logger.EventAccountCompleted, "", models.ErrDecryptionFailed.Code)
		return nil, models.ErrDecryptionFailed
	}

	invite, err := s.invites.GetByNonceHash(ctx, cryptox.HashHex(string(nonce)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Failure(ctx, logger.EventAccountCompleted, "", models.ErrAccountInviteNotFound.Code)
			return nil, models.ErrAccountInviteNotFound
		}
		return nil, coded(s.logger, err, "failed to get account invite")
	}

	// Deleting claims the invite. Losing the race to a concurrent completion
	// reads as not found.
	if err := s.invites.Delete(ctx, invite.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Failure(ctx, logger.EventAccountCompleted, invite.UserID, models.ErrAccountInviteNotFound.Code)
			return nil, models.ErrAccountInviteNotFound
		}
		return nil, coded(s.logger, err, "failed to claim account invite", slog.String("invite_id", invite.ID))
	}

	if invite.IsExpired() {
		s.audit.Failure(ctx, logger.EventAccountCompleted, invite.UserID, "INVITE_EXPIRED")
		return nil, models.ErrAccountInviteNotFound
	}

	user, err := s.users.GetByID(ctx, invite.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, coded(s.logger, err, "failed to get user", slog.String("user_id", invite.UserID))
	}

	added, err := s.keys.Add(ctx, AddPublicKeyInput{
		OwnerID:     user.ID,
		Key:         publicKeyPEM,
		MakeDefault: true,
	})
	if err != nil {
		s.audit.Failure(ctx, logger.EventAccountCompleted, user.ID, models.CodeOf(err))
		return nil, err
	}

	if _, err := s.accounts.UpdateStatus(ctx, user.AccountID, models.AccountStatusActive); err != nil {
		return nil, coded(s.logger, err, "failed to activate account", slog.String("account_id", user.AccountID))
	}

	var boundKey string
	for _, k := range added.Keys {
		if k.ID == added.AddedKeyID {
			boundKey = k.Key
		}
	}

	issued, err := s.sessions.CreateSession(ctx, user, boundKey, nil)
	if err != nil {
		return nil, err
	}

	s.audit.Success(ctx, logger.EventAccountCompleted, user.ID, map[string]string{
		"key_id": added.AddedKeyID,
	})
	return issued, nil
}
