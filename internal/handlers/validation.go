package handlers

import (
	"fmt"
	"regexp"
	"time"

	"github.com/BradenHooton/lockbox/pkg/cryptox"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var keyTextPattern = regexp.MustCompile(`^[A-Za-z0-9 _.\-]*$`)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// registration cannot fail for these static tags
	_ = v.RegisterValidation("pem_public_key", func(fl validator.FieldLevel) bool {
		_, err := cryptox.ParsePublicKeyPEM(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("key_text", func(fl validator.FieldLevel) bool {
		return keyTextPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.After(time.Now())
	})

	return v
}

// ValidateRequest validates a request struct using go-playground/validator
// Returns a user-friendly error message if validation fails
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return fmt.Errorf("validation failed: %s: %s", ve[0].Field(), formatValidationError(ve[0]))
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "alphanum":
		return "must contain only letters and digits"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid id"
	case "pem_public_key":
		return "must be a PEM encoded RSA public key"
	case "key_text":
		return "may contain only letters, digits, spaces, '_', '.' and '-'"
	case "future":
		return "must be in the future"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
