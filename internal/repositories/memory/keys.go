package memory

import (
	"context"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
)

type PublicKeyStore struct {
	s *Store
}

// checkUnique must be called with mu held
func (r *PublicKeyStore) checkUnique(key *models.PublicKey) error {
	for _, k := range r.s.publicKeys {
		if k.ID == key.ID {
			continue
		}
		if k.Key == key.Key {
			return models.ErrDuplicatePublicKey
		}
		if k.OwnerID == key.OwnerID && k.Label != nil && key.Label != nil && *k.Label == *key.Label {
			return models.ErrDuplicateLabel
		}
	}
	return nil
}

// clearDefault must be called with mu held
func (r *PublicKeyStore) clearDefault(ownerID, exceptID string, now time.Time) {
	for _, k := range r.s.keysOf(ownerID) {
		if k.ID != exceptID && k.IsDefault {
			k.IsDefault = false
			k.UpdatedAt = now
		}
	}
}

func (r *PublicKeyStore) Create(ctx context.Context, key *models.PublicKey, maxKeys int) (*models.PublicKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[key.OwnerID]; !ok {
		return nil, models.ErrUserNotFound
	}

	count := len(r.s.keysOf(key.OwnerID))
	if maxKeys >= 0 && count >= maxKeys {
		return nil, models.ErrMaxPublicKeysReached
	}

	now := time.Now()
	key.ID = uuid.New().String()
	key.CreatedAt, key.UpdatedAt = now, now
	if count == 0 {
		key.IsDefault = true
	}

	if err := r.checkUnique(key); err != nil {
		return nil, err
	}
	if key.IsDefault {
		r.clearDefault(key.OwnerID, key.ID, now)
	}

	r.s.publicKeys[key.ID] = copyKey(key)
	r.s.keyOrder = append(r.s.keyOrder, key.ID)
	return key, nil
}

func (r *PublicKeyStore) GetByID(ctx context.Context, id string) (*models.PublicKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.publicKeys[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyKey(k), nil
}

func (r *PublicKeyStore) GetByKey(ctx context.Context, pemKey string) (*models.PublicKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, k := range r.s.publicKeys {
		if k.Key == pemKey {
			return copyKey(k), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *PublicKeyStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.PublicKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	keys := r.s.keysOf(ownerID)
	out := make([]*models.PublicKey, len(keys))
	for i, k := range keys {
		out[i] = copyKey(k)
	}
	return out, nil
}

func (r *PublicKeyStore) Update(ctx context.Context, key *models.PublicKey) (*models.PublicKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.publicKeys[key.ID]
	if !ok || existing.OwnerID != key.OwnerID {
		return nil, models.ErrPublicKeyNotFound
	}
	if err := r.checkUnique(key); err != nil {
		return nil, err
	}

	now := time.Now()
	if key.IsDefault {
		r.clearDefault(key.OwnerID, key.ID, now)
	}

	updated := copyKey(key)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now
	r.s.publicKeys[key.ID] = updated
	return copyKey(updated), nil
}

func (r *PublicKeyStore) Delete(ctx context.Context, ownerID, keyID string) (*models.PublicKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[ownerID]; !ok {
		return nil, models.ErrUserNotFound
	}
	k, ok := r.s.publicKeys[keyID]
	if !ok || k.OwnerID != ownerID {
		return nil, models.ErrPublicKeyNotFound
	}
	if k.IsDefault {
		return nil, models.ErrCannotDeleteDefaultKey
	}
	if len(r.s.keysOf(ownerID)) <= 1 {
		return nil, models.ErrCannotDeleteLastKey
	}

	r.s.removeKey(keyID)
	return copyKey(k), nil
}

func (r *PublicKeyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := make(map[string]int)
	for _, k := range r.s.publicKeys {
		counts[k.OwnerID]++
	}

	var removed int64
	for id, k := range r.s.publicKeys {
		if k.ExpiresAt.Before(now) && !k.IsDefault && counts[k.OwnerID] > 1 {
			r.s.removeKey(id)
			counts[k.OwnerID]--
			removed++
		}
	}
	return removed, nil
}
