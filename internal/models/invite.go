package models

import (
	"time"

	"github.com/BradenHooton/lockbox/pkg/cryptox"
)

// AccountInvite authorizes the single completion of a pending registration.
// Only the SHA-256 digest of the nonce is stored.
type AccountInvite struct {
	ID        string    `json:"id"`
	NonceHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if the invite has expired
func (i *AccountInvite) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// LoginInvite is the server half of a login challenge. Nonce and challenge are
// envelope encrypted.
type LoginInvite struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Nonce     cryptox.Envelope `json:"-"`
	Challenge cryptox.Envelope `json:"-"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsExpired checks if the invite has expired
func (i *LoginInvite) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}
