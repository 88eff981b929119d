package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, username, email, role, account_id, created_at, updated_at`

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.AccountID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return users, nil
}

// CreateWithAccount inserts a user and the account it owns in one transaction
func (r *UserRepository) CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) (*models.User, *models.Account, error) {
	now := time.Now()
	user.ID = uuid.New().String()
	account.ID = uuid.New().String()
	account.OwnerID = user.ID
	user.AccountID = account.ID
	user.CreatedAt, user.UpdatedAt = now, now
	account.CreatedAt, account.UpdatedAt = now, now

	if account.Status == "" {
		account.Status = models.AccountStatusPending
	}
	if user.Role == "" {
		user.Role = models.RoleAccountOwner
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, owner_id, status, account_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, account.ID, account.OwnerID, account.Status, account.AccountType, account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return database.MapPostgresError(err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, username, email, role, account_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, user.ID, user.Username, user.Email, user.Role, user.AccountID, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			return database.MapPostgresError(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return user, account, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername matches case-insensitively, like the unique index
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return scanUserRows(rows)
}

// DeletePending removes a user whose account is still PENDING. Deleting the
// account cascades to its users and their keys, invites and sessions.
func (r *UserRepository) DeletePending(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM accounts a
		USING users u
		WHERE u.id = $1 AND a.id = u.account_id AND a.status = 'PENDING'
	`, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
