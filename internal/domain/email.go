package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEmail is returned when an email address fails validation.
var ErrInvalidEmail = errors.New("invalid email address")

var emailValidator = validator.New()

// EmailAddress is a syntactically valid email address.
// The zero value is invalid; construct via ParseEmail.
type EmailAddress struct {
	value string
}

// ParseEmail validates raw and returns it as an EmailAddress.
func ParseEmail(raw string) (EmailAddress, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return EmailAddress{}, ErrInvalidEmail
	}
	if err := emailValidator.Var(s, "email"); err != nil {
		return EmailAddress{}, ErrInvalidEmail
	}
	return EmailAddress{value: s}, nil
}

// String returns the address as entered (trimmed).
func (e EmailAddress) String() string { return e.value }

// IsZero reports whether the address is the invalid zero value.
func (e EmailAddress) IsZero() bool { return e.value == "" }
