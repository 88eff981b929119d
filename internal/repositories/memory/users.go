package memory

import (
	"context"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
)

type UserStore struct {
	s *Store
}

func (r *UserStore) CreateWithAccount(ctx context.Context, user *models.User, account *models.Account) (*models.User, *models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if sameFold(u.Username, user.Username) {
			return nil, nil, models.ErrUsernameTaken
		}
		if sameFold(u.Email, user.Email) {
			return nil, nil, models.ErrEmailTaken
		}
	}
	if _, ok := r.s.accountTypes[account.AccountType]; !ok {
		return nil, nil, models.ErrBadRequest
	}

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

	r.s.users[user.ID] = copyUser(user)
	r.s.accounts[account.ID] = copyAccount(account)
	return user, account, nil
}

func (r *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if sameFold(u.Username, username) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if sameFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *UserStore) ListByAccount(ctx context.Context, accountID string) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*models.User, 0)
	for _, u := range r.s.users {
		if u.AccountID == accountID {
			users = append(users, copyUser(u))
		}
	}
	return users, nil
}

// DeletePending removes a user whose account is still PENDING, together with
// that account and anything the user owns. Other users are not found.
func (r *UserStore) DeletePending(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	a, ok := r.s.accounts[u.AccountID]
	if !ok || a.Status != models.AccountStatusPending {
		return models.ErrNotFound
	}

	for id := range r.s.userIDsOfAccount(a.ID) {
		for kid, k := range r.s.publicKeys {
			if k.OwnerID == id {
				r.s.removeKey(kid)
			}
		}
		for iid, inv := range r.s.accountInvites {
			if inv.UserID == id {
				delete(r.s.accountInvites, iid)
			}
		}
		for iid, inv := range r.s.loginInvites {
			if inv.UserID == id {
				delete(r.s.loginInvites, iid)
			}
		}
		for sid, sess := range r.s.sessions {
			if sess.UserID == id {
				delete(r.s.sessions, sid)
			}
		}
		delete(r.s.users, id)
	}
	delete(r.s.accounts, a.ID)
	return nil
}

type AccountStore struct {
	s *Store
}

func (r *AccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyAccount(a), nil
}

func (r *AccountStore) UpdateStatus(ctx context.Context, id, status string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return copyAccount(a), nil
}

func (r *AccountStore) UpdateType(ctx context.Context, id, accountType string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if _, ok := r.s.accountTypes[accountType]; !ok {
		return nil, models.ErrBadRequest
	}
	a.AccountType = accountType
	a.UpdatedAt = time.Now()
	return copyAccount(a), nil
}

func (r *AccountStore) SoftDelete(ctx context.Context, id string, at time.Time) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	a.Status = models.AccountStatusDeleted
	a.DeletedAt = &at
	a.UpdatedAt = at

	members := r.s.userIDsOfAccount(id)
	for kid, k := range r.s.publicKeys {
		if members[k.OwnerID] {
			r.s.removeKey(kid)
		}
	}
	for sid, sess := range r.s.sessions {
		if members[sess.UserID] {
			delete(r.s.sessions, sid)
		}
	}
	for iid, inv := range r.s.loginInvites {
		if members[inv.UserID] {
			delete(r.s.loginInvites, iid)
		}
	}
	for iid, inv := range r.s.accountInvites {
		if members[inv.UserID] {
			delete(r.s.accountInvites, iid)
		}
	}
	return copyAccount(a), nil
}

func (r *AccountStore) GetAccountType(ctx context.Context, accountType string) (*models.AccountType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.accountTypes[accountType]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (r *AccountStore) ListAccountTypes(ctx context.Context) ([]*models.AccountType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	types := make([]*models.AccountType, 0, len(r.s.accountTypes))
	for _, name := range []string{models.AccountTypeFree, models.AccountTypePremium, models.AccountTypeBusiness} {
		if t, ok := r.s.accountTypes[name]; ok {
			types = append(types, &t)
		}
	}
	return types, nil
}
