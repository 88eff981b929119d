package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/internal/repositories/memory"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/BradenHooton/lockbox/pkg/logger"
	"github.com/stretchr/testify/require"
)

const testKeyCount = 6

var (
	pairsOnce sync.Once
	pairs     []*cryptox.KeyPair
)

// testPairs returns cached 2048-bit keypairs. pairs[0] is the application key.
func testPairs(t *testing.T) []*cryptox.KeyPair {
	t.Helper()
	pairsOnce.Do(func() {
		for i := 0; i < testKeyCount; i++ {
			p, err := cryptox.GenerateKeyPair(cryptox.MinKeyBits)
			if err != nil {
				panic(err)
			}
			pairs = append(pairs, p)
		}
	})
	return pairs
}

type sentInvite struct {
	email, username, token string
	expiresAt              time.Time
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentInvite
	err  error
}

func (m *recordingMailer) SendAccountInvite(_ context.Context, email, username, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentInvite{email, username, token, expiresAt})
	return m.err
}

type testEnv struct {
	store        *memory.Store
	app          *cryptox.KeyService
	vault        *cryptox.Vault
	mailer       *recordingMailer
	sessions     *auth.SessionManager
	keys         *PublicKeyService
	provisioning *ProvisioningService
	login        *LoginService
	accounts     *AccountService
	users        *UserService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, ProvisioningConfig{})
}

func newTestEnvWithConfig(t *testing.T, cfg ProvisioningConfig) *testEnv {
	t.Helper()

	app, err := cryptox.NewKeyService(testPairs(t)[0])
	require.NoError(t, err)
	vault, err := cryptox.NewVault(cryptox.VaultConfig{
		Passphrase: "test-symmetric-passphrase",
		Salt:       "test-salt-value",
		Pepper:     "test-pepper",
	})
	require.NoError(t, err)

	log := discardLogger()
	audit := logger.NewAuditLogger(log)
	store := memory.NewStore()
	mailer := &recordingMailer{}

	sessions := auth.NewSessionManager(store.Sessions(), store.Users(), store.Accounts(), store.PublicKeys(),
		app, vault, audit, log, auth.SessionConfig{DefaultTTL: auth.MinSessionTTL, MaxTTL: auth.MaxSessionTTL})
	keys := NewPublicKeyService(store.PublicKeys(), store.Users(), store.Accounts(), audit, log, 30*24*time.Hour)

	return &testEnv{
		store:        store,
		app:          app,
		vault:        vault,
		mailer:       mailer,
		sessions:     sessions,
		keys:         keys,
		provisioning: NewProvisioningService(store.Users(), store.Accounts(), store.AccountInvites(), keys, sessions, app, mailer, audit, log, cfg),
		login:        NewLoginService(store.Users(), store.LoginInvites(), keys, sessions, app, vault, nil, audit, log, 15*time.Minute),
		accounts:     NewAccountService(store.Accounts(), store.Users(), store.PublicKeys(), audit, log),
		users:        NewUserService(store.Users(), store.Accounts(), store.PublicKeys(), log),
	}
}

// provisioningWith builds a ProvisioningService over the env's store with a
// replacement invite repository
func (e *testEnv) provisioningWith(invites AccountInviteRepository) *ProvisioningService {
	log := discardLogger()
	return NewProvisioningService(e.store.Users(), e.store.Accounts(), invites, e.keys, e.sessions,
		e.app, e.mailer, logger.NewAuditLogger(log), log, ProvisioningConfig{})
}

func pemOf(t *testing.T, pair *cryptox.KeyPair) string {
	t.Helper()
	text, err := pair.PublicPEM()
	require.NoError(t, err)
	return text
}

// toApp encrypts plaintext for the application key, as a client does
func (e *testEnv) toApp(t *testing.T, plaintext string) string {
	t.Helper()
	ct, err := cryptox.EncryptWithPublicKey(e.app.PublicKey(), []byte(plaintext))
	require.NoError(t, err)
	return cryptox.EncodeToken(ct)
}

// sealAs produces a client pseudo-signature over data
func sealAs(t *testing.T, pair *cryptox.KeyPair, data string) string {
	t.Helper()
	token, err := cryptox.SealWithPrivateKey(pair.Private, []byte(data))
	require.NoError(t, err)
	return cryptox.EncodeToken(token)
}

// decryptAs decrypts a base64 token addressed to pair
func decryptAs(t *testing.T, pair *cryptox.KeyPair, token string) string {
	t.Helper()
	ct, err := cryptox.DecodeToken(token)
	require.NoError(t, err)
	pt, err := cryptox.DecryptWithPrivateKey(pair.Private, ct)
	require.NoError(t, err)
	return string(pt)
}

// openInvite recovers the invite nonce from a sealed invite token
func (e *testEnv) openInvite(t *testing.T, token string) string {
	t.Helper()
	sealed, err := cryptox.DecodeToken(token)
	require.NoError(t, err)
	nonce, err := cryptox.OpenWithPublicKey(e.app.PublicKey(), sealed)
	require.NoError(t, err)
	return string(nonce)
}

// register runs the full provisioning handshake for username with pair
func (e *testEnv) register(t *testing.T, username string, pair *cryptox.KeyPair) (*CreateUserResult, *models.IssuedSession) {
	t.Helper()
	ctx := context.Background()

	created, err := e.provisioning.CreateUser(ctx, username, username+"@example.com", "")
	require.NoError(t, err)

	nonce := e.openInvite(t, created.InviteToken)
	issued, err := e.provisioning.CompleteAccount(ctx, e.toApp(t, nonce), pemOf(t, pair))
	require.NoError(t, err)
	return created, issued
}

// credentials derives the transport headers of issued for pair
func (e *testEnv) credentials(t *testing.T, issued *models.IssuedSession, pair *cryptox.KeyPair, keyID string) auth.Credentials {
	t.Helper()
	sessionID := decryptAs(t, pair, issued.SessionID)
	nonce := decryptAs(t, pair, issued.Nonce)
	return auth.Credentials{
		Authorization: e.toApp(t, sessionID),
		Signature:     sealAs(t, pair, cryptox.HashHex(issued.User.ID, nonce)),
		KeyID:         keyID,
	}
}

// loginAs runs both login rounds for user with pair
func (e *testEnv) loginAs(t *testing.T, user *models.User, pair *cryptox.KeyPair, keyID string) *models.IssuedSession {
	t.Helper()
	ctx := context.Background()

	challenge, err := cryptox.RandomToken(cryptox.MinTokenBytes)
	require.NoError(t, err)

	resp, err := e.login.GetLoginNonce(ctx, user.Username, e.toApp(t, challenge),
		sealAs(t, pair, cryptox.HashHex(user.Username, challenge)), keyID)
	require.NoError(t, err)

	nonce := decryptAs(t, pair, resp.Nonce)
	issued, err := e.login.CompleteLogin(ctx, e.toApp(t, nonce),
		sealAs(t, pair, cryptox.HashHex(user.ID, nonce)), user.ID, keyID)
	require.NoError(t, err)
	return issued
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
