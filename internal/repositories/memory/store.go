// Package memory is a mutex guarded in-memory implementation of every
// repository. It backs DB_DRIVER=memory and the protocol tests.
package memory

import (
	"strings"
	"sync"

	"github.com/BradenHooton/lockbox/internal/models"
)

// Store holds all records behind one lock. The typed views returned by its
// accessors share that lock, so a view method is atomic across tables.
type Store struct {
	mu sync.RWMutex

	accountTypes   map[string]models.AccountType
	accounts       map[string]*models.Account
	users          map[string]*models.User
	publicKeys     map[string]*models.PublicKey
	keyOrder       []string
	accountInvites map[string]*models.AccountInvite
	loginInvites   map[string]*models.LoginInvite
	sessions       map[string]*models.AuthSession
}

// NewStore creates an empty store seeded with the standard account types
func NewStore() *Store {
	return &Store{
		accountTypes: map[string]models.AccountType{
			models.AccountTypeFree:     {Type: models.AccountTypeFree, Price: 0, MaxUsers: 1, MaxPublicKeys: 3, MaxPasswords: 50},
			models.AccountTypePremium:  {Type: models.AccountTypePremium, Price: 3.99, MaxUsers: 1, MaxPublicKeys: 10, MaxPasswords: -1},
			models.AccountTypeBusiness: {Type: models.AccountTypeBusiness, Price: 19.99, MaxUsers: 25, MaxPublicKeys: -1, MaxPasswords: -1},
		},
		accounts:       make(map[string]*models.Account),
		users:          make(map[string]*models.User),
		publicKeys:     make(map[string]*models.PublicKey),
		accountInvites: make(map[string]*models.AccountInvite),
		loginInvites:   make(map[string]*models.LoginInvite),
		sessions:       make(map[string]*models.AuthSession),
	}
}

func (s *Store) Users() *UserStore                   { return &UserStore{s} }
func (s *Store) Accounts() *AccountStore             { return &AccountStore{s} }
func (s *Store) PublicKeys() *PublicKeyStore         { return &PublicKeyStore{s} }
func (s *Store) AccountInvites() *AccountInviteStore { return &AccountInviteStore{s} }
func (s *Store) LoginInvites() *LoginInviteStore     { return &LoginInviteStore{s} }
func (s *Store) Sessions() *SessionStore             { return &SessionStore{s} }

// userIDsOfAccount must be called with mu held
func (s *Store) userIDsOfAccount(accountID string) map[string]bool {
	ids := make(map[string]bool)
	for _, u := range s.users {
		if u.AccountID == accountID {
			ids[u.ID] = true
		}
	}
	return ids
}

// keysOf must be called with mu held. Keys come back in insertion order.
func (s *Store) keysOf(ownerID string) []*models.PublicKey {
	keys := make([]*models.PublicKey, 0)
	for _, id := range s.keyOrder {
		if k, ok := s.publicKeys[id]; ok && k.OwnerID == ownerID {
			keys = append(keys, k)
		}
	}
	return keys
}

// removeKey must be called with mu held
func (s *Store) removeKey(id string) {
	delete(s.publicKeys, id)
	for i, kid := range s.keyOrder {
		if kid == id {
			s.keyOrder = append(s.keyOrder[:i], s.keyOrder[i+1:]...)
			return
		}
	}
}

func sameFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func copyKey(k *models.PublicKey) *models.PublicKey {
	c := *k
	if k.Label != nil {
		l := *k.Label
		c.Label = &l
	}
	if k.Description != nil {
		d := *k.Description
		c.Description = &d
	}
	return &c
}
