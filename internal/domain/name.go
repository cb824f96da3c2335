package domain

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName is returned when a display name fails validation.
var ErrInvalidName = errors.New("invalid subscriber name")

// maxNameRunes bounds display names after NFC normalization.
const maxNameRunes = 256

// Characters rejected in display names in addition to control characters.
// The set covers the usual header/markup injection suspects.
const forbiddenNameChars = `/()"<>\{}`

// SubscriberName is a validated display name.
// The zero value is invalid; construct via ParseName.
type SubscriberName struct {
	value string
}

// ParseName normalizes raw to NFC, trims surrounding whitespace and
// validates the result: non-empty, at most 256 runes, no control or
// forbidden characters.
func ParseName(raw string) (SubscriberName, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	if s == "" {
		return SubscriberName{}, ErrInvalidName
	}
	if utf8.RuneCountInString(s) > maxNameRunes {
		return SubscriberName{}, ErrInvalidName
	}
	for _, r := range s {
		if unicode.IsControl(r) || strings.ContainsRune(forbiddenNameChars, r) {
			return SubscriberName{}, ErrInvalidName
		}
	}
	return SubscriberName{value: s}, nil
}

// String returns the normalized name.
func (n SubscriberName) String() string { return n.value }

// IsZero reports whether the name is the invalid zero value.
func (n SubscriberName) IsZero() bool { return n.value == "" }
