package models

import (
	"time"
)

// PublicKey is a registered RSA public key of a user.
type PublicKey struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Label       *string   `json:"label,omitempty"`
	Description *string   `json:"description,omitempty"`
	IsDefault   bool      `json:"default"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsExpired checks if the key has expired
func (k *PublicKey) IsExpired() bool {
	return time.Now().After(k.ExpiresAt)
}

// PublicKeyUpdate carries the fields of a key update. Nil fields are left untouched.
type PublicKeyUpdate struct {
	Key         *string
	Label       *string
	Description *string
	ExpiresAt   *time.Time
	IsDefault   *bool
}

// Empty reports whether the update carries no field at all
func (u PublicKeyUpdate) Empty() bool {
	return u.Key == nil && u.Label == nil && u.Description == nil && u.ExpiresAt == nil && u.IsDefault == nil
}

// SelectKey returns the key with keyID among an owner's keys, else the first
// key in insertion order. It fails only when the owner has no keys.
func SelectKey(keys []*PublicKey, keyID string) (*PublicKey, error) {
	if len(keys) == 0 {
		return nil, ErrPublicKeyNotFound
	}
	if keyID != "" {
		for _, k := range keys {
			if k.ID == keyID {
				return k, nil
			}
		}
	}
	return keys[0], nil
}
