package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/logger"
)

// AccountDetails is an account with its quota template and members
type AccountDetails struct {
	Account *models.Account     `json:"account"`
	Type    *models.AccountType `json:"accountType"`
	Users   []*models.User      `json:"users"`
}

// AccountService handles account tier and status changes
type AccountService struct {
	accounts AccountRepository
	users    UserRepository
	keys     PublicKeyRepository
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

func NewAccountService(accounts AccountRepository, users UserRepository, keys PublicKeyRepository, audit *logger.AuditLogger, logger *slog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		users:    users,
		keys:     keys,
		audit:    audit,
		logger:   logger,
	}
}

func (s *AccountService) getAccount(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, models.ErrMissingField
	}
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, coded(s.logger, err, "failed to get account", slog.String("account_id", id))
	}
	return account, nil
}

func (s *AccountService) getType(ctx context.Context, accountType string) (*models.AccountType, error) {
	t, err := s.accounts.GetAccountType(ctx, accountType)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidAccountType
	}
	if err != nil {
		return nil, coded(s.logger, err, "failed to get account type", slog.String("account_type", accountType))
	}
	return t, nil
}

// GetAccount returns an account with its tier and users
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*AccountDetails, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	t, err := s.getType(ctx, account.AccountType)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list account users", slog.String("account_id", account.ID))
	}
	return &AccountDetails{Account: account, Type: t, Users: users}, nil
}

// ListAccountTypes returns the available tiers
func (s *AccountService) ListAccountTypes(ctx context.Context) ([]*models.AccountType, error) {
	types, err := s.accounts.ListAccountTypes(ctx)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list account types")
	}
	return types, nil
}

// ChangeAccountType moves actor's account to another tier. A downgrade is
// refused when current usage exceeds the new limits.
func (s *AccountService) ChangeAccountType(ctx context.Context, actor *models.User, accountType string) (*models.Account, error) {
	if actor == nil {
		return nil, models.ErrNotAuthenticated
	}
	if !actor.IsAccountOwner() {
		return nil, models.ErrNotAccountOwner
	}
	if accountType == "" {
		return nil, models.ErrMissingField
	}

	account, err := s.getAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, err
	}
	target, err := s.getType(ctx, accountType)
	if err != nil {
		return nil, err
	}
	if account.AccountType == target.Type {
		return account, nil
	}

	users, err := s.users.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list account users", slog.String("account_id", account.ID))
	}
	if target.MaxUsers >= 0 && len(users) > target.MaxUsers {
		return nil, models.ErrInvalidAccountType
	}
	for _, u := range users {
		keys, err := s.keys.ListByOwner(ctx, u.ID)
		if err != nil {
			return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", u.ID))
		}
		if target.MaxPublicKeys >= 0 && len(keys) > target.MaxPublicKeys {
			return nil, models.ErrMaxPublicKeysReached
		}
	}

	updated, err := s.accounts.UpdateType(ctx, account.ID, target.Type)
	if err != nil {
		return nil, coded(s.logger, err, "failed to update account type", slog.String("account_id", account.ID))
	}

	s.audit.Success(ctx, logger.EventAccountType, actor.ID, map[string]string{
		"from": account.AccountType,
		"to":   target.Type,
	})
	return updated, nil
}

// SetStatus applies a billing or operations status transition. DELETED is
// reachable only through DeleteAccount, and a deleted account stays deleted.
func (s *AccountService) SetStatus(ctx context.Context, accountID, status string) (*models.Account, error) {
	if !models.ValidAccountStatus(status) || status == models.AccountStatusDeleted {
		return nil, models.ErrInvalidAccountStatus
	}

	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status == models.AccountStatusDeleted {
		return nil, models.ErrAccountNotActive
	}

	updated, err := s.accounts.UpdateStatus(ctx, account.ID, status)
	if err != nil {
		return nil, coded(s.logger, err, "failed to update account status", slog.String("account_id", account.ID))
	}

	s.audit.Success(ctx, logger.EventAccountStatus, account.OwnerID, map[string]string{
		"from": account.Status,
		"to":   status,
	})
	return updated, nil
}

// DeleteAccount soft deletes actor's account. Keys, sessions and invites of
// its users are removed.
func (s *AccountService) DeleteAccount(ctx context.Context, actor *models.User) (*models.Account, error) {
	if actor == nil {
		return nil, models.ErrNotAuthenticated
	}
	if !actor.IsAccountOwner() {
		return nil, models.ErrNotAccountOwner
	}

	deleted, err := s.accounts.SoftDelete(ctx, actor.AccountID, time.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, coded(s.logger, err, "failed to delete account", slog.String("account_id", actor.AccountID))
	}

	s.audit.Success(ctx, logger.EventAccountDeleted, actor.ID, map[string]string{
		"account_id": deleted.ID,
	})
	return deleted, nil
}
