package services

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/go-playground/validator/v10"
)

const (
	MaxLabelLength       = 100
	MaxDescriptionLength = 500
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,75}$`)
	keyTextPattern  = regexp.MustCompile(`^[A-Za-z0-9 _.\-]*$`)

	validate = validator.New()
)

func validateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return models.ErrMissingField
	}
	if !usernamePattern.MatchString(username) {
		return models.ErrInvalidUsername
	}
	return nil
}

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return models.ErrMissingField
	}
	if err := validate.Var(email, "email,max=254"); err != nil {
		return models.ErrInvalidEmail
	}
	return nil
}

// normalizeLabel returns nil for an empty label
func normalizeLabel(label *string) (*string, error) {
	if label == nil {
		return nil, nil
	}
	l := strings.TrimSpace(*label)
	if l == "" {
		return nil, nil
	}
	if len(l) > MaxLabelLength || !keyTextPattern.MatchString(l) {
		return nil, models.ErrInvalidLabel
	}
	return &l, nil
}

// normalizeDescription returns nil for an empty description
func normalizeDescription(desc *string) (*string, error) {
	if desc == nil {
		return nil, nil
	}
	d := strings.TrimSpace(*desc)
	if d == "" {
		return nil, nil
	}
	if len(d) > MaxDescriptionLength || !keyTextPattern.MatchString(d) {
		return nil, models.ErrInvalidDescription
	}
	return &d, nil
}

// normalizePublicKey parses PEM text and returns its canonical PKIX encoding
// and fingerprint. PKCS#1 and PKIX encodings of one key normalize equally.
func normalizePublicKey(text string) (canonical, fingerprint string, err error) {
	if strings.TrimSpace(text) == "" {
		return "", "", models.ErrMissingField
	}
	pub, err := cryptox.ParsePublicKeyPEM(text)
	if err != nil {
		return "", "", models.ErrInvalidPublicKey
	}
	canonical, err = cryptox.EncodePublicKeyPEM(pub)
	if err != nil {
		return "", "", models.ErrInvalidPublicKey
	}
	fingerprint, err = cryptox.Fingerprint(pub)
	if err != nil {
		return "", "", models.ErrInvalidPublicKey
	}
	return canonical, fingerprint, nil
}

func validateExpiry(expiresAt, now time.Time) error {
	if !expiresAt.After(now) {
		return models.ErrInvalidExpiry
	}
	return nil
}

// coded passes protocol errors through and collapses anything else into
// ErrInternalServer after logging it
func coded(logger *slog.Logger, err error, msg string, attrs ...any) error {
	var protoErr *models.Error
	if errors.As(err, &protoErr) {
		return protoErr
	}
	logger.Error(msg, append(attrs, slog.Any("error", err))...)
	return models.ErrInternalServer
}
