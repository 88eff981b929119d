package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, owner_id, status, account_type, deleted_at, created_at, updated_at`

type AccountRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db, pool: db.Pool}
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	err := scanner.Scan(
		&account.ID, &account.OwnerID, &account.Status, &account.AccountType,
		&account.DeletedAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id, status string) (*models.Account, error) {
	query := `
		UPDATE accounts SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccountRow(r.pool.QueryRow(ctx, query, id, status))
}

func (r *AccountRepository) UpdateType(ctx context.Context, id, accountType string) (*models.Account, error) {
	query := `
		UPDATE accounts SET account_type = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccountRow(r.pool.QueryRow(ctx, query, id, accountType))
}

// SoftDelete marks the account DELETED and clears the keys, sessions and
// pending invites of every user in it. User rows are kept.
func (r *AccountRepository) SoftDelete(ctx context.Context, id string, at time.Time) (*models.Account, error) {
	var account *models.Account

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		account, err = scanAccountRow(tx.QueryRow(ctx, `
			UPDATE accounts SET status = $2, deleted_at = $3, updated_at = $3
			WHERE id = $1
			RETURNING `+accountColumns, id, models.AccountStatusDeleted, at))
		if err != nil {
			return err
		}

		cleared := []string{
			`DELETE FROM public_keys WHERE owner_id IN (SELECT id FROM users WHERE account_id = $1)`,
			`DELETE FROM auth_sessions WHERE user_id IN (SELECT id FROM users WHERE account_id = $1)`,
			`DELETE FROM login_invites WHERE user_id IN (SELECT id FROM users WHERE account_id = $1)`,
			`DELETE FROM account_invites WHERE user_id IN (SELECT id FROM users WHERE account_id = $1)`,
		}
		for _, stmt := range cleared {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to clear account data: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) GetAccountType(ctx context.Context, accountType string) (*models.AccountType, error) {
	query := `
		SELECT type, price::float8, max_users, max_public_keys, max_passwords
		FROM account_types WHERE type = $1
	`

	var t models.AccountType
	err := r.pool.QueryRow(ctx, query, accountType).Scan(
		&t.Type, &t.Price, &t.MaxUsers, &t.MaxPublicKeys, &t.MaxPasswords,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

func (r *AccountRepository) ListAccountTypes(ctx context.Context) ([]*models.AccountType, error) {
	query := `
		SELECT type, price::float8, max_users, max_public_keys, max_passwords
		FROM account_types ORDER BY price
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query account types: %w", err)
	}
	defer rows.Close()

	types := make([]*models.AccountType, 0)
	for rows.Next() {
		var t models.AccountType
		if err := rows.Scan(&t.Type, &t.Price, &t.MaxUsers, &t.MaxPublicKeys, &t.MaxPasswords); err != nil {
			return nil, fmt.Errorf("failed to scan account type: %w", err)
		}
		types = append(types, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return types, nil
}
