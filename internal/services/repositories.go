package services

import (
	"context"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) (*models.User, *models.Account, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.User, error)
	DeletePending(ctx context.Context, userID string) error
}

// AccountRepository defines the interface for account and account type access
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateStatus(ctx context.Context, id, status string) (*models.Account, error)
	UpdateType(ctx context.Context, id, accountType string) (*models.Account, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (*models.Account, error)
	GetAccountType(ctx context.Context, accountType string) (*models.AccountType, error)
	ListAccountTypes(ctx context.Context) ([]*models.AccountType, error)
}

// PublicKeyRepository defines the interface for public key storage. Create,
// Update and Delete enforce quota, default-key and deletion guards atomically.
type PublicKeyRepository interface {
	Create(ctx context.Context, key *models.PublicKey, maxKeys int) (*models.PublicKey, error)
	GetByID(ctx context.Context, id string) (*models.PublicKey, error)
	GetByKey(ctx context.Context, pemKey string) (*models.PublicKey, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error)
	Update(ctx context.Context, key *models.PublicKey) (*models.PublicKey, error)
	Delete(ctx context.Context, ownerID, keyID string) (*models.PublicKey, error)
}

// AccountInviteRepository defines the interface for registration invites
type AccountInviteRepository interface {
	Create(ctx context.Context, invite *models.AccountInvite) (*models.AccountInvite, error)
	GetByNonceHash(ctx context.Context, nonceHash string) (*models.AccountInvite, error)
	Delete(ctx context.Context, id string) error
}

// LoginInviteRepository defines the interface for login challenges
type LoginInviteRepository interface {
	Create(ctx context.Context, invite *models.LoginInvite) (*models.LoginInvite, error)
	GetLatestByUserID(ctx context.Context, userID string) (*models.LoginInvite, error)
	Delete(ctx context.Context, id string) error
}

// SessionIssuer creates sessions for a user bound to one of its keys
type SessionIssuer interface {
	CreateSession(ctx context.Context, user *models.User, publicKeyPEM string, requestedExpiry *time.Time) (*models.IssuedSession, error)
}
