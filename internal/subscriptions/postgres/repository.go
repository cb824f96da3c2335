// Package postgres provides the PostgreSQL implementation of the
// subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx satisfied by both the pool and a
// transaction, so the same queries run inside and outside WithinTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithinTx runs fn with a Repository bound to a single transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(subscriptions.Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txRepo := &Repository{pool: r.pool, q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateSubscriber inserts a new subscriber row.
func (r *Repository) CreateSubscriber(ctx context.Context, subscriber *domain.Subscriber) error {
	query := `
		INSERT INTO subscribers (id, email, name, status, subscribed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.q.Exec(ctx, query,
		subscriber.ID,
		subscriber.Email.String(),
		subscriber.Name.String(),
		subscriber.Status,
		subscriber.SubscribedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// CreateToken inserts a confirmation token. The primary key on the token
// value enforces global uniqueness.
func (r *Repository) CreateToken(ctx context.Context, token *domain.ConfirmationToken) error {
	query := `
		INSERT INTO confirmation_tokens (token, subscriber_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.q.Exec(ctx, query, token.Token, token.SubscriberID, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert confirmation token: %w", err)
	}
	return nil
}

// TokenByValue resolves a confirmation token.
func (r *Repository) TokenByValue(ctx context.Context, value string) (*domain.ConfirmationToken, error) {
	query := `
		SELECT token, subscriber_id, created_at
		FROM confirmation_tokens
		WHERE token = $1
	`
	var token domain.ConfirmationToken
	err := r.q.QueryRow(ctx, query, value).Scan(&token.Token, &token.SubscriberID, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrUnknownToken
		}
		return nil, fmt.Errorf("get confirmation token: %w", err)
	}
	return &token, nil
}

// SubscriberByID retrieves a subscriber by ID.
func (r *Repository) SubscriberByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	query := `
		SELECT id, email, name, status, subscribed_at
		FROM subscribers
		WHERE id = $1
	`
	return r.scanSubscriber(r.q.QueryRow(ctx, query, id))
}

// ConfirmSubscriber transitions a subscriber to confirmed. The row update
// serializes concurrent confirms; repeating it is a no-op, so the status
// never moves backwards and racing callers all succeed.
func (r *Repository) ConfirmSubscriber(ctx context.Context, id string) error {
	query := `
		UPDATE subscribers
		SET status = $2
		WHERE id = $1
	`
	result, err := r.q.Exec(ctx, query, id, domain.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriberNotFound
	}
	return nil
}

// ListConfirmed returns a snapshot of all confirmed subscribers. Rows
// whose stored contact details no longer validate are skipped and logged
// rather than failing the whole listing.
func (r *Repository) ListConfirmed(ctx context.Context) ([]domain.Subscriber, error) {
	query := `
		SELECT id, email, name, status, subscribed_at
		FROM subscribers
		WHERE status = $1
		ORDER BY subscribed_at
	`
	rows, err := r.q.Query(ctx, query, domain.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list confirmed subscribers: %w", err)
	}
	defer rows.Close()

	confirmed := make([]domain.Subscriber, 0)
	for rows.Next() {
		var (
			id, email, name, status string
			subscribedAt            time.Time
		)
		if err := rows.Scan(&id, &email, &name, &status, &subscribedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}

		parsed, err := buildSubscriber(id, email, name, status, subscribedAt)
		if err != nil {
			slog.Warn("skipping confirmed subscriber with invalid stored contact details",
				"subscriber_id", id,
				"error", err,
			)
			continue
		}
		confirmed = append(confirmed, *parsed)
	}

	return confirmed, rows.Err()
}

func (r *Repository) scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var (
		id, email, name, status string
		subscribedAt            time.Time
	)
	if err := row.Scan(&id, &email, &name, &status, &subscribedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}

	subscriber, err := buildSubscriber(id, email, name, status, subscribedAt)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: %w", id, err)
	}
	return subscriber, nil
}

// buildSubscriber re-validates stored contact details through the domain
// value objects, so corrupt rows surface instead of flowing downstream.
func buildSubscriber(id, email, name, status string, subscribedAt time.Time) (*domain.Subscriber, error) {
	parsedEmail, err := domain.ParseEmail(email)
	if err != nil {
		return nil, fmt.Errorf("stored email: %w", err)
	}
	parsedName, err := domain.ParseName(name)
	if err != nil {
		return nil, fmt.Errorf("stored name: %w", err)
	}

	return &domain.Subscriber{
		ID:           id,
		Email:        parsedEmail,
		Name:         parsedName,
		Status:       domain.SubscriberStatus(status),
		SubscribedAt: subscribedAt,
	}, nil
}
