package subscriptions

import "errors"

// Service errors.
var (
	// ErrUnknownToken means the confirmation token was never issued or
	// references a subscriber that no longer exists.
	ErrUnknownToken = errors.New("unknown confirmation token")
	// ErrTokenExpired means the token is older than the configured TTL.
	ErrTokenExpired = errors.New("confirmation token expired")
)

// Repository errors.
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
)
