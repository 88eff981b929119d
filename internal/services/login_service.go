package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/BradenHooton/lockbox/pkg/logger"
)

// MaxLoginInviteTTL is the exclusive upper bound of a login challenge lifetime
const MaxLoginInviteTTL = 30 * time.Minute

// LoginChallenge is the server's answer to the first login round. Every field
// is base64 encoded; Nonce and ChallengeResponse are encrypted to the user's
// key, Signature is hash(nonce+challenge) sealed with the application key.
type LoginChallenge struct {
	Nonce             string `json:"nonce"`
	ChallengeResponse string `json:"challengeResponse"`
	Signature         string `json:"signature"`
}

// LoginService runs the two round challenge/response login
type LoginService struct {
	users     UserRepository
	invites   LoginInviteRepository
	keys      *PublicKeyService
	sessions  SessionIssuer
	appKeys   *cryptox.KeyService
	vault     *cryptox.Vault
	timing    *auth.TimingDelay
	audit     *logger.AuditLogger
	logger    *slog.Logger
	inviteTTL time.Duration
}

func NewLoginService(
	users UserRepository,
	invites LoginInviteRepository,
	keys *PublicKeyService,
	sessions SessionIssuer,
	appKeys *cryptox.KeyService,
	vault *cryptox.Vault,
	timing *auth.TimingDelay,
	audit *logger.AuditLogger,
	logger *slog.Logger,
	inviteTTL time.Duration,
) *LoginService {
	if inviteTTL <= 0 || inviteTTL >= MaxLoginInviteTTL {
		inviteTTL = 15 * time.Minute
	}

	return &LoginService{
		users:     users,
		invites:   invites,
		keys:      keys,
		sessions:  sessions,
		appKeys:   appKeys,
		vault:     vault,
		timing:    timing,
		audit:     audit,
		logger:    logger,
		inviteTTL: inviteTTL,
	}
}

// GetLoginNonce authenticates the first round. The caller proves possession
// of its private key by sealing hash(username+challenge); the server answers
// with the challenge and a fresh nonce, both encrypted to the caller's key.
func (s *LoginService) GetLoginNonce(ctx context.Context, username, challengeCiphertext, signature, keyID string) (result *LoginChallenge, err error) {
	start := time.Now()
	var userID string
	defer func() {
		if err != nil {
			s.audit.Failure(ctx, logger.EventLoginChallenge, userID, models.CodeOf(err))
			s.timing.WaitFrom(ctx, start, false)
		}
	}()

	username = strings.TrimSpace(username)
	if username == "" || challengeCiphertext == "" || signature == "" {
		return nil, models.ErrMissingField
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, coded(s.logger, err, "failed to get user by username")
	}
	userID = user.ID

	key, err := s.keys.SelectForOwner(ctx, user.ID, keyID)
	if err != nil {
		return nil, err
	}
	pub, err := cryptox.ParsePublicKeyPEM(key.Key)
	if err != nil {
		return nil, coded(s.logger, err, "stored public key is unreadable", slog.String("key_id", key.ID))
	}

	challenge, err := s.appKeys.DecryptToken(challengeCiphertext)
	if err != nil {
		return nil, models.ErrDecryptionFailed
	}

	sig, err := cryptox.DecodeToken(signature)
	// the client signs the username it sent, which may differ in case from the stored one
	if err != nil || !cryptox.OpenMatches(pub, sig, []byte(cryptox.HashHex(username, string(challenge)))) {
		return nil, models.ErrSignatureVerificationFailed
	}

	challengeResponse, err := cryptox.EncryptWithPublicKey(pub, challenge)
	if err != nil {
		s.logger.Error("failed to encrypt challenge response", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	nonce, err := cryptox.RandomToken(cryptox.MinTokenBytes)
	if err != nil {
		s.logger.Error("failed to generate login nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	encNonce, err := cryptox.EncryptWithPublicKey(pub, []byte(nonce))
	if err != nil {
		s.logger.Error("failed to encrypt login nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	storedNonce, err := s.vault.Protect([]byte(nonce))
	if err != nil {
		s.logger.Error("failed to protect login nonce", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	storedChallenge, err := s.vault.Protect(challenge)
	if err != nil {
		s.logger.Error("failed to protect login challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.invites.Create(ctx, &models.LoginInvite{
		UserID:    user.ID,
		Nonce:     storedNonce,
		Challenge: storedChallenge,
		ExpiresAt: time.Now().Add(s.inviteTTL),
	}); err != nil {
		return nil, coded(s.logger, err, "failed to create login invite", slog.String("user_id", user.ID))
	}

	serverSig, err := s.appKeys.Seal([]byte(cryptox.HashHex(nonce, string(challenge))))
	if err != nil {
		s.logger.Error("failed to seal login response", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Success(ctx, logger.EventLoginChallenge, user.ID, map[string]string{
		"key_id": key.ID,
	})

	return &LoginChallenge{
		Nonce:             cryptox.EncodeToken(encNonce),
		ChallengeResponse: cryptox.EncodeToken(challengeResponse),
		Signature:         cryptox.EncodeToken(serverSig),
	}, nil
}

// CompleteLogin finishes the second round: the nonce, re-encrypted to the
// application key, must match the pending invite and be signed by the same
// key. The invite is consumed and a session is issued.
func (s *LoginService) CompleteLogin(ctx context.Context, nonceCiphertext, signature, userID, keyID string) (issued *models.IssuedSession, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			s.audit.Failure(ctx, logger.EventLoginCompleted, userID, models.CodeOf(err))
			s.timing.WaitFrom(ctx, start, false)
		}
	}()

	if nonceCiphertext == "" || signature == "" || userID == "" {
		return nil, models.ErrMissingField
	}

	nonce, err := s.appKeys.DecryptToken(nonceCiphertext)
	if err != nil {
		return nil, models.ErrDecryptionFailed
	}

	// an unknown user has no invite either
	invite, err := s.invites.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrLoginInviteNotFound
		}
		return nil, coded(s.logger, err, "failed to get login invite", slog.String("user_id", userID))
	}
	if invite.IsExpired() {
		return nil, models.ErrLoginInviteNotFound
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, coded(s.logger, err, "failed to get user", slog.String("user_id", userID))
	}

	key, err := s.keys.SelectForOwner(ctx, user.ID, keyID)
	if err != nil {
		return nil, err
	}
	pub, err := cryptox.ParsePublicKeyPEM(key.Key)
	if err != nil {
		return nil, coded(s.logger, err, "stored public key is unreadable", slog.String("key_id", key.ID))
	}

	sig, err := cryptox.DecodeToken(signature)
	if err != nil || !cryptox.OpenMatches(pub, sig, []byte(cryptox.HashHex(user.ID, string(nonce)))) {
		return nil, models.ErrSignatureVerificationFailed
	}

	stored, err := s.vault.Reveal(invite.Nonce)
	if err != nil || subtle.ConstantTimeCompare(stored, nonce) != 1 {
		return nil, models.ErrNonceNotEqual
	}

	if err := s.invites.Delete(ctx, invite.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// consumed by a concurrent completion
			return nil, models.ErrLoginInviteNotFound
		}
		return nil, coded(s.logger, err, "failed to delete login invite", slog.String("invite_id", invite.ID))
	}

	issued, err = s.sessions.CreateSession(ctx, user, key.Key, nil)
	if err != nil {
		return nil, err
	}

	s.audit.Success(ctx, logger.EventLoginCompleted, user.ID, map[string]string{
		"key_id": key.ID,
	})
	return issued, nil
}
