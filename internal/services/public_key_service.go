package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/logger"
)

// AddPublicKeyInput describes a key to register for OwnerID
type AddPublicKeyInput struct {
	OwnerID     string
	Key         string
	Label       *string
	Description *string
	ExpiresAt   *time.Time
	MakeDefault bool
}

// AddPublicKeyResult is the owner with its key set after an add
type AddPublicKeyResult struct {
	User       *models.User        `json:"user"`
	Keys       []*models.PublicKey `json:"keys"`
	AddedKeyID string              `json:"addedKeyId"`
}

// PublicKeyService manages the registered public keys of users
type PublicKeyService struct {
	keys     PublicKeyRepository
	users    UserRepository
	accounts AccountRepository
	audit    *logger.AuditLogger
	logger   *slog.Logger
	keyTTL   time.Duration
}

func NewPublicKeyService(keys PublicKeyRepository, users UserRepository, accounts AccountRepository, audit *logger.AuditLogger, logger *slog.Logger, keyTTL time.Duration) *PublicKeyService {
	return &PublicKeyService{
		keys:     keys,
		users:    users,
		accounts: accounts,
		audit:    audit,
		logger:   logger,
		keyTTL:   keyTTL,
	}
}

func (s *PublicKeyService) getUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, models.ErrMissingField
	}
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, coded(s.logger, err, "failed to get user", slog.String("user_id", id))
	}
	return user, nil
}

// keyLimit returns the MaxPublicKeys of the owner's account tier
func (s *PublicKeyService) keyLimit(ctx context.Context, user *models.User) (int, error) {
	account, err := s.accounts.GetByID(ctx, user.AccountID)
	if errors.Is(err, models.ErrNotFound) {
		return 0, models.ErrAccountNotFound
	}
	if err != nil {
		return 0, coded(s.logger, err, "failed to get account", slog.String("account_id", user.AccountID))
	}

	accountType, err := s.accounts.GetAccountType(ctx, account.AccountType)
	if errors.Is(err, models.ErrNotFound) {
		return 0, models.ErrAccountTypeNotFound
	}
	if err != nil {
		return 0, coded(s.logger, err, "failed to get account type", slog.String("account_type", account.AccountType))
	}
	return accountType.MaxPublicKeys, nil
}

// checkKeyAvailable fails when pemKey is registered to any key but exceptID
func (s *PublicKeyService) checkKeyAvailable(ctx context.Context, pemKey, exceptID string) error {
	existing, err := s.keys.GetByKey(ctx, pemKey)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return coded(s.logger, err, "failed to look up public key")
	}
	if existing.ID != exceptID {
		return models.ErrDuplicatePublicKey
	}
	return nil
}

func labelTaken(keys []*models.PublicKey, label *string, exceptID string) bool {
	if label == nil {
		return false
	}
	for _, k := range keys {
		if k.ID != exceptID && k.Label != nil && *k.Label == *label {
			return true
		}
	}
	return false
}

// Add registers a public key. The owner's first key always becomes the
// default; MakeDefault moves the default to the new key.
func (s *PublicKeyService) Add(ctx context.Context, in AddPublicKeyInput) (*AddPublicKeyResult, error) {
	user, err := s.getUser(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}

	pemKey, fingerprint, err := normalizePublicKey(in.Key)
	if err != nil {
		return nil, err
	}
	label, err := normalizeLabel(in.Label)
	if err != nil {
		return nil, err
	}
	description, err := normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.keyTTL)
	if in.ExpiresAt != nil {
		if err := validateExpiry(*in.ExpiresAt, now); err != nil {
			return nil, err
		}
		expiresAt = *in.ExpiresAt
	}

	maxKeys, err := s.keyLimit(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.checkKeyAvailable(ctx, pemKey, ""); err != nil {
		return nil, err
	}

	existing, err := s.keys.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", user.ID))
	}
	if labelTaken(existing, label, "") {
		return nil, models.ErrDuplicateLabel
	}

	created, err := s.keys.Create(ctx, &models.PublicKey{
		OwnerID:     user.ID,
		Key:         pemKey,
		Fingerprint: fingerprint,
		Label:       label,
		Description: description,
		IsDefault:   in.MakeDefault,
		ExpiresAt:   expiresAt,
	}, maxKeys)
	if err != nil {
		if errors.Is(err, models.ErrMaxPublicKeysReached) {
			s.audit.Failure(ctx, logger.EventKeyAdded, user.ID, models.CodeOf(err))
		}
		return nil, coded(s.logger, err, "failed to create public key", slog.String("user_id", user.ID))
	}

	keys, err := s.keys.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", user.ID))
	}

	s.audit.Success(ctx, logger.EventKeyAdded, user.ID, map[string]string{
		"key_id":      created.ID,
		"fingerprint": logger.Fingerprint(created.Fingerprint),
		"default":     boolString(created.IsDefault),
	})

	return &AddPublicKeyResult{User: user, Keys: keys, AddedKeyID: created.ID}, nil
}

// Update applies upd to one of ownerID's keys. Supplied fields are validated
// as in Add. The default flag can be moved to a key but not cleared from the
// current default.
func (s *PublicKeyService) Update(ctx context.Context, keyID, ownerID string, upd models.PublicKeyUpdate) (*models.PublicKey, error) {
	if keyID == "" || ownerID == "" {
		return nil, models.ErrMissingField
	}
	if upd.Empty() {
		return nil, models.ErrNoFieldsToUpdate
	}

	key, err := s.keys.GetByID(ctx, keyID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && key.OwnerID != ownerID) {
		return nil, models.ErrPublicKeyNotFound
	}
	if err != nil {
		return nil, coded(s.logger, err, "failed to get public key", slog.String("key_id", keyID))
	}

	if upd.Key != nil {
		pemKey, fingerprint, err := normalizePublicKey(*upd.Key)
		if err != nil {
			return nil, err
		}
		if err := s.checkKeyAvailable(ctx, pemKey, key.ID); err != nil {
			return nil, err
		}
		key.Key, key.Fingerprint = pemKey, fingerprint
	}

	if upd.Label != nil {
		label, err := normalizeLabel(upd.Label)
		if err != nil {
			return nil, err
		}
		siblings, err := s.keys.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", ownerID))
		}
		if labelTaken(siblings, label, key.ID) {
			return nil, models.ErrDuplicateLabel
		}
		key.Label = label
	}

	if upd.Description != nil {
		description, err := normalizeDescription(upd.Description)
		if err != nil {
			return nil, err
		}
		key.Description = description
	}

	if upd.ExpiresAt != nil {
		if err := validateExpiry(*upd.ExpiresAt, time.Now()); err != nil {
			return nil, err
		}
		key.ExpiresAt = *upd.ExpiresAt
	}

	if upd.IsDefault != nil {
		if !*upd.IsDefault && key.IsDefault {
			return nil, models.ErrCannotUnsetDefaultKey
		}
		key.IsDefault = *upd.IsDefault
	}

	updated, err := s.keys.Update(ctx, key)
	if err != nil {
		return nil, coded(s.logger, err, "failed to update public key", slog.String("key_id", keyID))
	}

	s.audit.Success(ctx, logger.EventKeyUpdated, ownerID, map[string]string{
		"key_id":  updated.ID,
		"default": boolString(updated.IsDefault),
	})
	return updated, nil
}

// Remove deletes one of ownerID's keys. The default key and an owner's only
// key can never be removed.
func (s *PublicKeyService) Remove(ctx context.Context, keyID, ownerID string) (*models.PublicKey, error) {
	if keyID == "" || ownerID == "" {
		return nil, models.ErrMissingField
	}

	deleted, err := s.keys.Delete(ctx, ownerID, keyID)
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			s.audit.Failure(ctx, logger.EventKeyRemoved, ownerID, models.CodeOf(err))
		}
		return nil, coded(s.logger, err, "failed to delete public key", slog.String("key_id", keyID))
	}

	s.audit.Success(ctx, logger.EventKeyRemoved, ownerID, map[string]string{
		"key_id":      deleted.ID,
		"fingerprint": logger.Fingerprint(deleted.Fingerprint),
	})
	return deleted, nil
}

// ListForOwner returns ownerID's keys in insertion order
func (s *PublicKeyService) ListForOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
	keys, err := s.keys.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, coded(s.logger, err, "failed to list public keys", slog.String("user_id", ownerID))
	}
	return keys, nil
}

// SelectForOwner picks keyID among ownerID's keys, falling back to the first
// key. It fails with ErrPublicKeyNotFound only when the owner has none.
func (s *PublicKeyService) SelectForOwner(ctx context.Context, ownerID, keyID string) (*models.PublicKey, error) {
	keys, err := s.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return models.SelectKey(keys, keyID)
}

// AuthorizeOwner reports whether actor may manage the keys of ownerID: its
// own keys, or any user's keys in the account it owns.
func (s *PublicKeyService) AuthorizeOwner(ctx context.Context, actor *models.User, ownerID string) error {
	if actor == nil {
		return models.ErrNotAuthenticated
	}
	if actor.ID == ownerID {
		return nil
	}
	if !actor.IsAccountOwner() {
		return models.ErrNotAccountOwner
	}

	target, err := s.getUser(ctx, ownerID)
	if err != nil {
		return err
	}
	if target.AccountID != actor.AccountID {
		return models.ErrNotAccountOwner
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
