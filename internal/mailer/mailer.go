// Package mailer abstracts the external email gateway.
// The gateway is modeled as unreliable: callers must be prepared for
// transient unavailability as well as permanent per-recipient rejections.
package mailer

import (
	"context"
	"errors"
	"net"
)

// Email is a single outbound message with both text and HTML bodies.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers email through an external gateway.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// ErrorKind classifies a send failure for retry decisions.
type ErrorKind string

const (
	// KindUnavailable covers transient failures: gateway down, timeouts,
	// temporary SMTP rejections. Worth retrying.
	KindUnavailable ErrorKind = "unavailable"
	// KindInvalidRecipient covers permanent rejections of the recipient
	// address. Retrying cannot succeed.
	KindInvalidRecipient ErrorKind = "invalid_recipient"
)

// SendError wraps a gateway failure with its classification.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string { return e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *SendError) Retryable() bool { return e.Kind == KindUnavailable }

// NewUnavailableError marks err as a transient gateway failure.
func NewUnavailableError(err error) *SendError {
	return &SendError{Kind: KindUnavailable, Err: err}
}

// NewInvalidRecipientError marks err as a permanent recipient rejection.
func NewInvalidRecipientError(err error) *SendError {
	return &SendError{Kind: KindInvalidRecipient, Err: err}
}

// IsRetryable reports whether delivery may succeed on retry.
// Unclassified errors default to retryable so transient faults from
// unknown layers are not given up on prematurely.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return true
}

// Kind returns the classification of err, or KindUnavailable for
// unclassified errors.
func Kind(err error) ErrorKind {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}
	return KindUnavailable
}
