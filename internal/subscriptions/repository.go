// Package subscriptions implements the subscriber lifecycle: signup with
// a pending status, confirmation via emailed tokens, and the queries the
// newsletter dispatcher builds on.
package subscriptions

import (
	"context"

	"github.com/brykin/letterdrop/internal/domain"
)

// Repository defines the interface for subscriber data access.
type Repository interface {
	// CreateSubscriber inserts a new subscriber row. Re-subscription is
	// allowed: the same email may have several pending rows.
	CreateSubscriber(ctx context.Context, subscriber *domain.Subscriber) error

	// CreateToken inserts a confirmation token bound to a subscriber.
	// Token values carry a uniqueness constraint in the store.
	CreateToken(ctx context.Context, token *domain.ConfirmationToken) error

	// TokenByValue resolves a token value. Returns ErrUnknownToken when
	// no such token was ever issued.
	TokenByValue(ctx context.Context, value string) (*domain.ConfirmationToken, error)

	// SubscriberByID fetches a subscriber. Returns ErrSubscriberNotFound
	// when the row is gone; callers treat a dangling token reference as
	// an unknown token.
	SubscriberByID(ctx context.Context, id string) (*domain.Subscriber, error)

	// ConfirmSubscriber transitions a subscriber to confirmed. The update
	// is idempotent and safe under concurrent invocation: the row update
	// serializes racing confirms and the status never moves backwards.
	ConfirmSubscriber(ctx context.Context, id string) error

	// ListConfirmed returns a point-in-time snapshot of all confirmed
	// subscribers.
	ListConfirmed(ctx context.Context) ([]domain.Subscriber, error)

	// WithinTx runs fn with a Repository bound to a single database
	// transaction. The transaction commits only if fn returns nil;
	// any error rolls back every write made through the bound Repository.
	WithinTx(ctx context.Context, fn func(Repository) error) error
}

