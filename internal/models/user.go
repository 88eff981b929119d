package models

import (
	"time"
)

// User roles
const (
	RoleAccountOwner = "ACCOUNT_OWNER"
	RoleSubUser      = "SUB_USER"
)

// User is an identity record. Keys and the owning account are referenced by
// id and resolved through the repositories.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAccountOwner reports whether the user owns its account
func (u *User) IsAccountOwner() bool {
	return u.Role == RoleAccountOwner
}
