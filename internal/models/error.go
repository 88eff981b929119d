package models

import "errors"

// Sentinel errors for common failure conditions. Each one is a taxonomy kind
// that coded errors below unwrap to.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Error is a protocol error with a fixed, enumerable code. errors.Is matches
// both the exact coded error and its kind.
type Error struct {
	Kind error
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Validation
var (
	ErrMissingField         = newError(ErrBadRequest, "MISSING_FIELD")
	ErrInvalidUsername      = newError(ErrBadRequest, "INVALID_USERNAME")
	ErrInvalidEmail         = newError(ErrBadRequest, "INVALID_EMAIL")
	ErrInvalidPublicKey     = newError(ErrBadRequest, "INVALID_PUBLIC_KEY")
	ErrInvalidLabel         = newError(ErrBadRequest, "INVALID_LABEL")
	ErrInvalidDescription   = newError(ErrBadRequest, "INVALID_DESCRIPTION")
	ErrInvalidExpiry        = newError(ErrBadRequest, "INVALID_EXPIRY")
	ErrNoFieldsToUpdate     = newError(ErrBadRequest, "NO_FIELDS_TO_UPDATE")
	ErrInvalidAccountType   = newError(ErrBadRequest, "INVALID_ACCOUNT_TYPE")
	ErrInvalidAccountStatus = newError(ErrBadRequest, "INVALID_ACCOUNT_STATUS")
)

// Authentication
var (
	ErrNotAuthenticated            = newError(ErrUnauthorized, "NOT_AUTHENTICATED")
	ErrSessionExpired              = newError(ErrUnauthorized, "SESSION_EXPIRED")
	ErrSignatureVerificationFailed = newError(ErrUnauthorized, "SIGNATURE_VERIFICATION_FAILED")
	ErrNonceNotEqual               = newError(ErrUnauthorized, "NONCE_NOT_EQUAL")
	ErrDecryptionFailed            = newError(ErrUnauthorized, "DECRYPTION_FAILED")
)

// Authorization and quota
var (
	ErrMaxPublicKeysReached   = newError(ErrForbidden, "MAX_PUBLIC_KEYS_REACHED")
	ErrMaxPasswordsReached    = newError(ErrForbidden, "MAX_PASSWORDS_REACHED")
	ErrCannotDeleteDefaultKey = newError(ErrForbidden, "CANNOT_DELETE_DEFAULT_KEY")
	ErrCannotDeleteLastKey    = newError(ErrForbidden, "CANNOT_DELETE_LAST_KEY")
	ErrCannotUnsetDefaultKey  = newError(ErrForbidden, "CANNOT_UNSET_DEFAULT_KEY")
	ErrAccountNotActive       = newError(ErrForbidden, "ACCOUNT_NOT_ACTIVE")
	ErrNotAccountOwner        = newError(ErrForbidden, "NOT_ACCOUNT_OWNER")
)

// Not found
var (
	ErrUserNotFound          = newError(ErrNotFound, "USER_NOT_FOUND")
	ErrAccountNotFound       = newError(ErrNotFound, "ACCOUNT_NOT_FOUND")
	ErrAccountTypeNotFound   = newError(ErrNotFound, "ACCOUNT_TYPE_NOT_FOUND")
	ErrPublicKeyNotFound     = newError(ErrNotFound, "PUBLIC_KEY_NOT_FOUND")
	ErrAccountInviteNotFound = newError(ErrNotFound, "ACCOUNT_INVITE_NOT_FOUND")
	ErrLoginInviteNotFound   = newError(ErrNotFound, "LOGIN_INVITE_NOT_FOUND")
	ErrSessionNotFound       = newError(ErrNotFound, "SESSION_NOT_FOUND")
)

// Conflict
var (
	ErrUsernameTaken      = newError(ErrConflict, "USERNAME_TAKEN")
	ErrEmailTaken         = newError(ErrConflict, "EMAIL_TAKEN")
	ErrDuplicatePublicKey = newError(ErrConflict, "DUPLICATE_PUBLIC_KEY")
	ErrDuplicateLabel     = newError(ErrConflict, "DUPLICATE_LABEL")
)

// CodeOf returns the protocol code carried by err, or "" when err is not a
// coded error.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
