package memory

import (
	"context"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
)

type AccountInviteStore struct {
	s *Store
}

func (r *AccountInviteStore) Create(ctx context.Context, invite *models.AccountInvite) (*models.AccountInvite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, inv := range r.s.accountInvites {
		if inv.NonceHash == invite.NonceHash {
			return nil, models.ErrConflict
		}
	}

	invite.ID = uuid.New().String()
	invite.CreatedAt = time.Now()
	c := *invite
	r.s.accountInvites[invite.ID] = &c
	return invite, nil
}

func (r *AccountInviteStore) GetByNonceHash(ctx context.Context, nonceHash string) (*models.AccountInvite, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, inv := range r.s.accountInvites {
		if inv.NonceHash == nonceHash {
			c := *inv
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *AccountInviteStore) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accountInvites[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.s.accountInvites, id)
	return nil
}

func (r *AccountInviteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, inv := range r.s.accountInvites {
		if inv.ExpiresAt.Before(now) {
			delete(r.s.accountInvites, id)
			removed++
		}
	}
	return removed, nil
}

type LoginInviteStore struct {
	s *Store
}

func (r *LoginInviteStore) Create(ctx context.Context, invite *models.LoginInvite) (*models.LoginInvite, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	invite.ID = uuid.New().String()
	invite.CreatedAt = time.Now()
	c := *invite
	r.s.loginInvites[invite.ID] = &c
	return invite, nil
}

func (r *LoginInviteStore) GetLatestByUserID(ctx context.Context, userID string) (*models.LoginInvite, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *models.LoginInvite
	for _, inv := range r.s.loginInvites {
		if inv.UserID != userID {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (r *LoginInviteStore) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.loginInvites[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.s.loginInvites, id)
	return nil
}

func (r *LoginInviteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, inv := range r.s.loginInvites {
		if inv.ExpiresAt.Before(now) {
			delete(r.s.loginInvites, id)
			removed++
		}
	}
	return removed, nil
}

type SessionStore struct {
	s *Store
}

func (r *SessionStore) Create(ctx context.Context, session *models.AuthSession) (*models.AuthSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	session.ID = uuid.New().String()
	session.CreatedAt, session.UpdatedAt = now, now
	c := *session
	r.s.sessions[session.ID] = &c
	return session, nil
}

func (r *SessionStore) GetByID(ctx context.Context, id string) (*models.AuthSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (r *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(r.s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// ExpireSession moves a session's expiry, for tests and operator tooling
func (r *SessionStore) ExpireSession(id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	sess.ExpiresAt = at
	return nil
}
