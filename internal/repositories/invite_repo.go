package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountInviteRepository struct {
	pool *pgxpool.Pool
}

func NewAccountInviteRepository(db *database.DB) *AccountInviteRepository {
	return &AccountInviteRepository{pool: db.Pool}
}

func (r *AccountInviteRepository) Create(ctx context.Context, invite *models.AccountInvite) (*models.AccountInvite, error) {
	invite.ID = uuid.New().String()
	invite.CreatedAt = time.Now()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO account_invites (id, nonce_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, invite.ID, invite.NonceHash, invite.UserID, invite.ExpiresAt, invite.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return invite, nil
}

func (r *AccountInviteRepository) GetByNonceHash(ctx context.Context, nonceHash string) (*models.AccountInvite, error) {
	var invite models.AccountInvite
	err := r.pool.QueryRow(ctx, `
		SELECT id, nonce_hash, user_id, expires_at, created_at
		FROM account_invites WHERE nonce_hash = $1
	`, nonceHash).Scan(&invite.ID, &invite.NonceHash, &invite.UserID, &invite.ExpiresAt, &invite.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &invite, nil
}

func (r *AccountInviteRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_invites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountInviteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_invites WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired account invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

type LoginInviteRepository struct {
	pool *pgxpool.Pool
}

func NewLoginInviteRepository(db *database.DB) *LoginInviteRepository {
	return &LoginInviteRepository{pool: db.Pool}
}

func (r *LoginInviteRepository) Create(ctx context.Context, invite *models.LoginInvite) (*models.LoginInvite, error) {
	invite.ID = uuid.New().String()
	invite.CreatedAt = time.Now()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_invites (id, user_id, nonce_iv, nonce_ct, challenge_iv, challenge_ct, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, invite.ID, invite.UserID, invite.Nonce.IV, invite.Nonce.Ciphertext,
		invite.Challenge.IV, invite.Challenge.Ciphertext, invite.ExpiresAt, invite.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return invite, nil
}

// GetLatestByUserID returns the most recently created invite of the user
func (r *LoginInviteRepository) GetLatestByUserID(ctx context.Context, userID string) (*models.LoginInvite, error) {
	var invite models.LoginInvite
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, nonce_iv, nonce_ct, challenge_iv, challenge_ct, expires_at, created_at
		FROM login_invites WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(
		&invite.ID, &invite.UserID, &invite.Nonce.IV, &invite.Nonce.Ciphertext,
		&invite.Challenge.IV, &invite.Challenge.Ciphertext, &invite.ExpiresAt, &invite.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &invite, nil
}

func (r *LoginInviteRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_invites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete login invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *LoginInviteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_invites WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired login invites: %w", err)
	}
	return tag.RowsAffected(), nil
}
