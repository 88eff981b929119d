package models

import (
	"time"

	"github.com/BradenHooton/lockbox/pkg/cryptox"
)

// AuthSession is a time bounded session. It is never mutated and expires by
// wall-clock comparison.
type AuthSession struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Nonce     cryptox.Envelope `json:"-"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsExpired checks if the session has expired
func (s *AuthSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// AuthContext is a validated session populated with its user, account and keys.
type AuthContext struct {
	Session *AuthSession
	User    *User
	Account *Account
	Keys    []*PublicKey
	Key     *PublicKey
}

// Check re-validates expiry and account status before a privileged action
func (c *AuthContext) Check(now time.Time) error {
	if c == nil || c.Session == nil || c.User == nil || c.Account == nil {
		return ErrNotAuthenticated
	}
	if !now.Before(c.Session.ExpiresAt) {
		return ErrSessionExpired
	}
	if !c.Account.IsActive() {
		return ErrAccountNotActive
	}
	return nil
}

// IssuedSession is what a caller receives after provisioning or login. Session
// id and nonce are encrypted with the caller's public key and base64 encoded.
type IssuedSession struct {
	SessionID string    `json:"sessionId"`
	Nonce     string    `json:"nonce"`
	User      *User     `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}
