package services

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultsOf(keys []*models.PublicKey) []string {
	var ids []string
	for _, k := range keys {
		if k.IsDefault {
			ids = append(ids, k.ID)
		}
	}
	return ids
}

func TestPublicKeyService_QuotaFollowsAccountType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "alice", p[1])
	owner := created.User

	for _, pair := range p[2:4] {
		_, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, pair)})
		require.NoError(t, err)
	}

	_, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[4])})
	assert.ErrorIs(t, err, models.ErrMaxPublicKeysReached)

	_, err = env.accounts.ChangeAccountType(ctx, owner, models.AccountTypePremium)
	require.NoError(t, err)

	result, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[4])})
	require.NoError(t, err)
	assert.Len(t, result.Keys, 4)
}

func TestPublicKeyService_ExactlyOneDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "bob", p[1])
	owner := created.User

	keys, err := env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	first := keys[0].ID
	assert.Equal(t, []string{first}, defaultsOf(keys))

	// a non-default add leaves the default alone
	result, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[2])})
	require.NoError(t, err)
	assert.Equal(t, []string{first}, defaultsOf(result.Keys))

	result, err = env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[3]), MakeDefault: true})
	require.NoError(t, err)
	assert.Equal(t, []string{result.AddedKeyID}, defaultsOf(result.Keys))

	_, err = env.keys.Update(ctx, first, owner.ID, models.PublicKeyUpdate{IsDefault: boolPtr(true)})
	require.NoError(t, err)
	keys, err = env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, defaultsOf(keys))

	_, err = env.keys.Update(ctx, first, owner.ID, models.PublicKeyUpdate{IsDefault: boolPtr(false)})
	assert.ErrorIs(t, err, models.ErrCannotUnsetDefaultKey)

	keys, err = env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, defaultsOf(keys))
}

func TestPublicKeyService_RemoveGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "carol", p[1])
	owner := created.User

	keys, err := env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	only := keys[0].ID

	_, err = env.keys.Remove(ctx, only, owner.ID)
	assert.ErrorIs(t, err, models.ErrCannotDeleteDefaultKey)

	result, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[2])})
	require.NoError(t, err)

	_, err = env.keys.Remove(ctx, only, owner.ID)
	assert.ErrorIs(t, err, models.ErrCannotDeleteDefaultKey)

	removed, err := env.keys.Remove(ctx, result.AddedKeyID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, result.AddedKeyID, removed.ID)

	_, err = env.keys.Remove(ctx, result.AddedKeyID, owner.ID)
	assert.ErrorIs(t, err, models.ErrPublicKeyNotFound)

	keys, err = env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestPublicKeyService_Add_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "dave", p[1])
	owner := created.User

	_, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[2]), Label: strPtr("work")})
	require.NoError(t, err)

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(p[1].Public),
	}))

	tests := []struct {
		name string
		in   AddPublicKeyInput
		want error
	}{
		{"missing owner", AddPublicKeyInput{Key: pemOf(t, p[3])}, models.ErrMissingField},
		{"unknown owner", AddPublicKeyInput{OwnerID: "nobody", Key: pemOf(t, p[3])}, models.ErrUserNotFound},
		{"missing key", AddPublicKeyInput{OwnerID: owner.ID}, models.ErrMissingField},
		{"not pem", AddPublicKeyInput{OwnerID: owner.ID, Key: "ssh-rsa AAAA"}, models.ErrInvalidPublicKey},
		{"same key", AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[1])}, models.ErrDuplicatePublicKey},
		{"same key pkcs1", AddPublicKeyInput{OwnerID: owner.ID, Key: pkcs1}, models.ErrDuplicatePublicKey},
		{"label taken", AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[3]), Label: strPtr(" work ")}, models.ErrDuplicateLabel},
		{"bad label", AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[3]), Label: strPtr("work/home")}, models.ErrInvalidLabel},
		{"bad description", AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[3]), Description: strPtr("<script>")}, models.ErrInvalidDescription},
		{"past expiry", AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[3]), ExpiresAt: timePtr(time.Now().Add(-time.Hour))}, models.ErrInvalidExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.keys.Add(ctx, tt.in)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPublicKeyService_Add_Defaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "erin", p[1])

	result, err := env.keys.Add(ctx, AddPublicKeyInput{
		OwnerID:     created.User.ID,
		Key:         pemOf(t, p[2]),
		Label:       strPtr("  "),
		Description: strPtr("backup key v2"),
	})
	require.NoError(t, err)

	added, err := env.store.PublicKeys().GetByID(ctx, result.AddedKeyID)
	require.NoError(t, err)
	assert.Nil(t, added.Label)
	require.NotNil(t, added.Description)
	assert.Equal(t, "backup key v2", *added.Description)
	assert.Contains(t, added.Fingerprint, "SHA256:")
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), added.ExpiresAt, time.Minute)
}

func TestPublicKeyService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	alice, _ := env.register(t, "frank", p[1])
	bob, _ := env.register(t, "grace", p[2])

	result, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: alice.User.ID, Key: pemOf(t, p[3]), Label: strPtr("one")})
	require.NoError(t, err)
	keyID := result.AddedKeyID

	updated, err := env.keys.Update(ctx, keyID, alice.User.ID, models.PublicKeyUpdate{
		Label:       strPtr("two"),
		Description: strPtr("rotated"),
		Key:         strPtr(pemOf(t, p[4])),
	})
	require.NoError(t, err)
	assert.Equal(t, "two", *updated.Label)
	assert.Equal(t, "rotated", *updated.Description)
	assert.Equal(t, pemOf(t, p[4]), updated.Key)

	_, err = env.keys.Update(ctx, keyID, alice.User.ID, models.PublicKeyUpdate{})
	assert.ErrorIs(t, err, models.ErrNoFieldsToUpdate)

	_, err = env.keys.Update(ctx, keyID, bob.User.ID, models.PublicKeyUpdate{Label: strPtr("mine")})
	assert.ErrorIs(t, err, models.ErrPublicKeyNotFound)

	_, err = env.keys.Update(ctx, keyID, alice.User.ID, models.PublicKeyUpdate{Key: strPtr(pemOf(t, p[2]))})
	assert.ErrorIs(t, err, models.ErrDuplicatePublicKey)

	_, err = env.keys.Update(ctx, keyID, alice.User.ID, models.PublicKeyUpdate{ExpiresAt: timePtr(time.Now().Add(-time.Second))})
	assert.ErrorIs(t, err, models.ErrInvalidExpiry)
}

func TestPublicKeyService_SelectForOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	created, _ := env.register(t, "heidi", p[1])
	owner := created.User

	keys, err := env.keys.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	first := keys[0].ID

	result, err := env.keys.Add(ctx, AddPublicKeyInput{OwnerID: owner.ID, Key: pemOf(t, p[2]), MakeDefault: true})
	require.NoError(t, err)

	key, err := env.keys.SelectForOwner(ctx, owner.ID, result.AddedKeyID)
	require.NoError(t, err)
	assert.Equal(t, result.AddedKeyID, key.ID)

	// unknown ids fall back to the first registered key, not the default
	key, err = env.keys.SelectForOwner(ctx, owner.ID, "missing")
	require.NoError(t, err)
	assert.Equal(t, first, key.ID)

	_, err = env.keys.SelectForOwner(ctx, "nobody", "")
	assert.ErrorIs(t, err, models.ErrPublicKeyNotFound)
}

func TestPublicKeyService_AuthorizeOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testPairs(t)
	alice, _ := env.register(t, "ivan", p[1])
	bob, _ := env.register(t, "judy", p[2])

	assert.NoError(t, env.keys.AuthorizeOwner(ctx, alice.User, alice.User.ID))
	assert.ErrorIs(t, env.keys.AuthorizeOwner(ctx, alice.User, bob.User.ID), models.ErrNotAccountOwner)
	assert.ErrorIs(t, env.keys.AuthorizeOwner(ctx, nil, alice.User.ID), models.ErrNotAuthenticated)

	sub := &models.User{ID: "sub", Role: models.RoleSubUser, AccountID: alice.User.AccountID}
	assert.ErrorIs(t, env.keys.AuthorizeOwner(ctx, sub, alice.User.ID), models.ErrNotAccountOwner)
}

func timePtr(t time.Time) *time.Time { return &t }
