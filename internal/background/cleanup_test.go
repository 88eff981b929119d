package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeleter struct{}

func (failingDeleter) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	user, _, err := store.Users().CreateWithAccount(ctx,
		&models.User{Username: "alice", Email: "alice@example.com"},
		&models.Account{AccountType: models.AccountTypeFree})
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	_, err = store.AccountInvites().Create(ctx, &models.AccountInvite{NonceHash: "a", UserID: user.ID, ExpiresAt: past})
	require.NoError(t, err)
	_, err = store.AccountInvites().Create(ctx, &models.AccountInvite{NonceHash: "b", UserID: user.ID, ExpiresAt: future})
	require.NoError(t, err)
	_, err = store.LoginInvites().Create(ctx, &models.LoginInvite{UserID: user.ID, ExpiresAt: past})
	require.NoError(t, err)
	_, err = store.Sessions().Create(ctx, &models.AuthSession{UserID: user.ID, ExpiresAt: past})
	require.NoError(t, err)

	// the default key survives even when expired
	_, err = store.PublicKeys().Create(ctx, &models.PublicKey{OwnerID: user.ID, Key: "k1", ExpiresAt: past}, -1)
	require.NoError(t, err)
	_, err = store.PublicKeys().Create(ctx, &models.PublicKey{OwnerID: user.ID, Key: "k2", ExpiresAt: past}, -1)
	require.NoError(t, err)

	cm := NewCleanupManager(map[string]ExpiredDeleter{
		"account_invites": store.AccountInvites(),
		"login_invites":   store.LoginInvites(),
		"sessions":        store.Sessions(),
		"public_keys":     store.PublicKeys(),
		"broken":          failingDeleter{},
	}, discard(), time.Hour)

	removed := cm.RunOnce(ctx)
	assert.Equal(t, int64(1), removed["account_invites"])
	assert.Equal(t, int64(1), removed["login_invites"])
	assert.Equal(t, int64(1), removed["sessions"])
	assert.Equal(t, int64(1), removed["public_keys"])
	assert.NotContains(t, removed, "broken")

	keys, err := store.PublicKeys().ListByOwner(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].IsDefault)

	_, err = store.AccountInvites().GetByNonceHash(ctx, "b")
	assert.NoError(t, err)
}

func TestCleanupManager_StartStop(t *testing.T) {
	cm := NewCleanupManager(map[string]ExpiredDeleter{}, discard(), time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	cm := NewCleanupManager(nil, discard(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager ignored cancellation")
	}
}
