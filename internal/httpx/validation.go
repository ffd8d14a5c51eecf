// Package httpx holds request parsing, validation and error rendering shared
// by the HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/money"
)

var (
	// ErrValidationFailed is returned when struct validation fails.
	ErrValidationFailed = errors.New("validation failed")
	// ErrBodyParseFailed is returned when request body parsing fails.
	ErrBodyParseFailed = errors.New("failed to parse request body")
	// ErrUnsupportedContentType is returned when the Content-Type is not application/json.
	ErrUnsupportedContentType = errors.New("Content-Type must be application/json")
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	// money accepts a decimal string with at most two fractional digits that
	// fits the stored precision. Sign
	// checks are left to the ledger so that a zero amount maps to its error.
	if err := vld.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		str := fl.Field().String()
		if str == "" {
			return true
		}
		_, err := money.Parse(str)
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("register money validation: %w", err)
	}
	return vld, nil
}

// Validator returns the shared validator instance.
func Validator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	return validate, errValidate
}

// ValidateStruct validates payload using its go-playground/validator tags and
// reports the first failing field.
func ValidateStruct(payload any) error {
	vld, err := Validator()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := vld.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			field := toSnakeCase(fe.Field())
			switch fe.Tag() {
			case "required":
				return fmt.Errorf("%w: '%s' is required", ErrValidationFailed, field)
			case "money":
				return fmt.Errorf("%w: '%s' must be a decimal with at most 2 fractional digits", ErrValidationFailed, field)
			case "oneof":
				return fmt.Errorf("%w: '%s' must be one of [%s]", ErrValidationFailed, field, fe.Param())
			default:
				return fmt.Errorf("%w: '%s' failed '%s' check", ErrValidationFailed, field, fe.Tag())
			}
		}
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// ParseBody decodes a JSON request body into payload and validates it.
func ParseBody(c *fiber.Ctx, payload any) error {
	ct := c.Get(fiber.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		return ErrUnsupportedContentType
	}
	if err := c.BodyParser(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrBodyParseFailed, err)
	}
	return ValidateStruct(payload)
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
