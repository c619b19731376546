package users

import (
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/domain/validation"
	"github.com/go-playground/validator/v10"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 50
	passwordSymbols   = "@#%"
)

// strongPassword accepts 8-50 characters from [A-Za-z0-9@#%] containing at
// least one lowercase letter, uppercase letter, digit and symbol.
func strongPassword(password string) bool {
	if len(password) < passwordMinLength || len(password) > passwordMaxLength {
		return false
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		default:
			return false
		}
	}
	return lower && upper && digit && symbol
}

func validateStrongPassword(fl validator.FieldLevel) bool {
	return strongPassword(fl.Field().String())
}

// NewValidator returns a validator with the user-specific tags registered.
func NewValidator() *validator.Validate {
	v := validation.New()
	// Registration only fails on a duplicate tag name.
	_ = v.RegisterValidation("strongpassword", validateStrongPassword)
	return v
}
