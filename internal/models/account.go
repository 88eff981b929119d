package models

import (
	"time"
)

// Account statuses
const (
	AccountStatusPending    = "PENDING"
	AccountStatusActive     = "ACTIVE"
	AccountStatusSuspended  = "SUSPENDED"
	AccountStatusCancelled  = "CANCELLED"
	AccountStatusDelinquent = "DELINQUENT"
	AccountStatusDeleted    = "DELETED"
)

// Account types seeded by migration
const (
	AccountTypeFree     = "FREE"
	AccountTypePremium  = "PREMIUM"
	AccountTypeBusiness = "BUSINESS"
)

// Account groups the users, keys and passwords of one tenant.
type Account struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Status      string     `json:"status"`
	AccountType string     `json:"account_type"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsActive reports whether the account may be used for authenticated work.
// PENDING, SUSPENDED, CANCELLED, DELINQUENT and DELETED accounts are never active.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// ValidAccountStatus reports whether status is one of the known statuses
func ValidAccountStatus(status string) bool {
	switch status {
	case AccountStatusPending, AccountStatusActive, AccountStatusSuspended,
		AccountStatusCancelled, AccountStatusDelinquent, AccountStatusDeleted:
		return true
	}
	return false
}

// AccountType is an immutable quota template. Negative limits mean unlimited.
type AccountType struct {
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	MaxUsers      int     `json:"max_users"`
	MaxPublicKeys int     `json:"max_public_keys"`
	MaxPasswords  int     `json:"max_passwords"`
}

// AllowsPublicKeys reports whether an owner holding count keys may add another
func (t *AccountType) AllowsPublicKeys(count int) bool {
	return t.MaxPublicKeys < 0 || count < t.MaxPublicKeys
}

// AllowsUsers reports whether an account holding count users may add another
func (t *AccountType) AllowsUsers(count int) bool {
	return t.MaxUsers < 0 || count < t.MaxUsers
}
