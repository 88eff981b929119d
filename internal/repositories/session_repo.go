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

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.AuthSession) (*models.AuthSession, error) {
	now := time.Now()
	session.ID = uuid.New().String()
	session.CreatedAt, session.UpdatedAt = now, now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, user_id, nonce_iv, nonce_ct, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.UserID, session.Nonce.IV, session.Nonce.Ciphertext,
		session.ExpiresAt, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.AuthSession, error) {
	// session ids arrive from clients; anything but a UUID cannot match
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	var session models.AuthSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, nonce_iv, nonce_ct, expires_at, created_at, updated_at
		FROM auth_sessions WHERE id = $1
	`, id).Scan(
		&session.ID, &session.UserID, &session.Nonce.IV, &session.Nonce.Ciphertext,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &session, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
