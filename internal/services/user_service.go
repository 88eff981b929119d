package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/lockbox/internal/models"
)

// Profile is a user with its account and registered keys
type Profile struct {
	User    *models.User        `json:"user"`
	Account *models.Account     `json:"account"`
	Keys    []*models.PublicKey `json:"keys"`
}

// UserService handles user lookups
type UserService struct {
	users    UserRepository
	accounts AccountRepository
	keys     PublicKeyRepository
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(users UserRepository, accounts AccountRepository, keys PublicKeyRepository, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		accounts: accounts,
		keys:     keys,
		logger:   logger,
	}
}

// GetProfile resolves a user's account and keys
func (s *UserService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", userID))
			return nil, models.ErrUserNotFound
		}
		return nil, coded(s.logger, err, "failed to get user", slog.String("user_id", userID))
	}

	account, err := s.accounts.GetByID(ctx, user.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, coded(s.logger, err, "failed to get account", slog.String("account_id", user.AccountID))
	}

	keys, err := s.keys.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", user.ID))
	}

	return &Profile{User: user, Account: account, Keys: keys}, nil
}
