package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const publicKeyColumns = `id, owner_id, key, fingerprint, label, description, is_default, expires_at, created_at, updated_at`

// PublicKeyRepository stores public keys. Every write that can change the
// default key or the key count of an owner locks the owner's user row first,
// so quota and default checks are serialised per owner.
type PublicKeyRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewPublicKeyRepository(db *database.DB) *PublicKeyRepository {
	return &PublicKeyRepository{db: db, pool: db.Pool}
}

func scanPublicKeyRow(scanner rowScanner) (*models.PublicKey, error) {
	var key models.PublicKey
	err := scanner.Scan(
		&key.ID, &key.OwnerID, &key.Key, &key.Fingerprint, &key.Label, &key.Description,
		&key.IsDefault, &key.ExpiresAt, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &key, nil
}

func scanPublicKeyRows(rows pgx.Rows) ([]*models.PublicKey, error) {
	defer rows.Close()

	keys := make([]*models.PublicKey, 0)
	for rows.Next() {
		key, err := scanPublicKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan public key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return keys, nil
}

// lockOwner takes the row lock that serialises key writes for ownerID
func lockOwner(ctx context.Context, q querier, ownerID string) error {
	var id string
	err := q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, ownerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrUserNotFound
	}
	return err
}

func countKeys(ctx context.Context, q querier, ownerID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM public_keys WHERE owner_id = $1`, ownerID).Scan(&count)
	return count, err
}

func clearDefault(ctx context.Context, q querier, ownerID, exceptID string) error {
	_, err := q.Exec(ctx, `
		UPDATE public_keys SET is_default = FALSE, updated_at = NOW()
		WHERE owner_id = $1 AND id <> $2 AND is_default
	`, ownerID, exceptID)
	return err
}

// Create inserts key for its owner. It fails with ErrMaxPublicKeysReached when
// the owner already holds maxKeys keys (negative means unlimited). The first
// key of an owner is always the default; a new default clears the old one.
func (r *PublicKeyRepository) Create(ctx context.Context, key *models.PublicKey, maxKeys int) (*models.PublicKey, error) {
	now := time.Now()
	key.ID = uuid.New().String()
	key.CreatedAt, key.UpdatedAt = now, now

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, key.OwnerID); err != nil {
			return err
		}

		count, err := countKeys(ctx, tx, key.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to count public keys: %w", err)
		}
		if maxKeys >= 0 && count >= maxKeys {
			return models.ErrMaxPublicKeysReached
		}
		if count == 0 {
			key.IsDefault = true
		}

		if key.IsDefault {
			if err := clearDefault(ctx, tx, key.OwnerID, key.ID); err != nil {
				return fmt.Errorf("failed to clear default key: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO public_keys (id, owner_id, key, fingerprint, label, description, is_default, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, key.ID, key.OwnerID, key.Key, key.Fingerprint, key.Label, key.Description,
			key.IsDefault, key.ExpiresAt, key.CreatedAt, key.UpdatedAt)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *PublicKeyRepository) GetByID(ctx context.Context, id string) (*models.PublicKey, error) {
	query := `SELECT ` + publicKeyColumns + ` FROM public_keys WHERE id = $1`
	return scanPublicKeyRow(r.pool.QueryRow(ctx, query, id))
}

func (r *PublicKeyRepository) GetByKey(ctx context.Context, pemKey string) (*models.PublicKey, error) {
	query := `SELECT ` + publicKeyColumns + ` FROM public_keys WHERE key = $1`
	return scanPublicKeyRow(r.pool.QueryRow(ctx, query, pemKey))
}

// ListByOwner returns the owner's keys in insertion order
func (r *PublicKeyRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
	query := `SELECT ` + publicKeyColumns + ` FROM public_keys WHERE owner_id = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query public keys: %w", err)
	}
	return scanPublicKeyRows(rows)
}

// Update writes every mutable field of key. Setting IsDefault clears the
// default flag of the owner's other keys in the same transaction.
func (r *PublicKeyRepository) Update(ctx context.Context, key *models.PublicKey) (*models.PublicKey, error) {
	var updated *models.PublicKey

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, key.OwnerID); err != nil {
			return err
		}

		if key.IsDefault {
			if err := clearDefault(ctx, tx, key.OwnerID, key.ID); err != nil {
				return fmt.Errorf("failed to clear default key: %w", err)
			}
		}

		var err error
		updated, err = scanPublicKeyRow(tx.QueryRow(ctx, `
			UPDATE public_keys
			SET key = $3, fingerprint = $4, label = $5, description = $6,
			    is_default = $7, expires_at = $8, updated_at = NOW()
			WHERE id = $1 AND owner_id = $2
			RETURNING `+publicKeyColumns,
			key.ID, key.OwnerID, key.Key, key.Fingerprint, key.Label, key.Description,
			key.IsDefault, key.ExpiresAt))
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrPublicKeyNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a key unless it is the owner's default or only key
func (r *PublicKeyRepository) Delete(ctx context.Context, ownerID, keyID string) (*models.PublicKey, error) {
	var deleted *models.PublicKey

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, ownerID); err != nil {
			return err
		}

		key, err := scanPublicKeyRow(tx.QueryRow(ctx,
			`SELECT `+publicKeyColumns+` FROM public_keys WHERE id = $1 AND owner_id = $2`, keyID, ownerID))
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrPublicKeyNotFound
		}
		if err != nil {
			return err
		}

		if key.IsDefault {
			return models.ErrCannotDeleteDefaultKey
		}

		count, err := countKeys(ctx, tx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to count public keys: %w", err)
		}
		if count <= 1 {
			return models.ErrCannotDeleteLastKey
		}

		if _, err := tx.Exec(ctx, `DELETE FROM public_keys WHERE id = $1`, keyID); err != nil {
			return fmt.Errorf("failed to delete public key: %w", err)
		}
		deleted = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteExpired removes expired keys that are neither their owner's default
// nor only key. It returns the number of rows removed.
func (r *PublicKeyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM public_keys pk
		WHERE pk.expires_at < $1
		  AND NOT pk.is_default
		  AND (SELECT COUNT(*) FROM public_keys o WHERE o.owner_id = pk.owner_id) > 1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired public keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
