package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/mailer"
	"github.com/google/uuid"
)

// Config contains subscription service configuration.
type Config struct {
	// BaseURL is the public address confirmation links point at.
	BaseURL string
	// TokenTTL bounds how long a confirmation token stays valid.
	// Zero means tokens never expire.
	TokenTTL time.Duration
}

// Service provides subscription and confirmation business logic.
type Service struct {
	repo   Repository
	sender mailer.Sender
	config Config
}

// NewService creates a new subscriptions service.
func NewService(repo Repository, sender mailer.Sender, config Config) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
		config: config,
	}
}

// SubscribeInput is the raw, unvalidated signup request.
type SubscribeInput struct {
	Name  string
	Email string
}

// Subscribe validates the input, stores a pending subscriber with a fresh
// confirmation token and sends the confirmation email.
//
// The store writes and the gateway send form a single atomicity boundary:
// the inserts commit only after the gateway accepts the message, and a
// gateway failure rolls everything back. The caller then observes an
// error, never a half-subscribed state.
//
// Re-subscription before confirmation is allowed and creates a fresh row
// and token; duplicates for the same email are not collapsed.
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*domain.Subscriber, error) {
	email, err := domain.ParseEmail(input.Email)
	if err != nil {
		return nil, err
	}
	name, err := domain.ParseName(input.Name)
	if err != nil {
		return nil, err
	}

	tokenValue, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate confirmation token: %w", err)
	}

	subscriber := &domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Status:       domain.StatusPendingConfirmation,
		SubscribedAt: time.Now().UTC(),
	}

	err = s.repo.WithinTx(ctx, func(r Repository) error {
		if err := r.CreateSubscriber(ctx, subscriber); err != nil {
			return fmt.Errorf("create subscriber: %w", err)
		}

		token := &domain.ConfirmationToken{
			Token:        tokenValue,
			SubscriberID: subscriber.ID,
			CreatedAt:    time.Now().UTC(),
		}
		if err := r.CreateToken(ctx, token); err != nil {
			return fmt.Errorf("create confirmation token: %w", err)
		}

		// The send happens inside the transaction scope so a refused
		// message rolls the inserts back.
		if err := s.sender.Send(ctx, s.confirmationEmail(subscriber, tokenValue)); err != nil {
			return fmt.Errorf("send confirmation email: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	recordSubscriberCreated()
	slog.Info("subscriber created",
		"subscriber_id", subscriber.ID,
		"status", subscriber.Status,
	)

	return subscriber, nil
}

// Confirm resolves a confirmation token and transitions the referenced
// subscriber to confirmed.
//
// Confirming an already confirmed subscriber is a no-op success, so
// clicking the link twice or racing duplicate requests all observe
// success with exactly one status transition.
func (s *Service) Confirm(ctx context.Context, tokenValue string) (*domain.Subscriber, error) {
	if tokenValue == "" {
		return nil, ErrUnknownToken
	}

	token, err := s.repo.TokenByValue(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if s.config.TokenTTL > 0 && time.Since(token.CreatedAt) > s.config.TokenTTL {
		return nil, ErrTokenExpired
	}

	subscriber, err := s.repo.SubscriberByID(ctx, token.SubscriberID)
	if err != nil {
		return nil, err
	}

	if subscriber.Status == domain.StatusConfirmed {
		return subscriber, nil
	}

	if err := s.repo.ConfirmSubscriber(ctx, subscriber.ID); err != nil {
		return nil, fmt.Errorf("confirm subscriber: %w", err)
	}
	subscriber.Status = domain.StatusConfirmed

	recordSubscriberConfirmed()
	slog.Info("subscriber confirmed", "subscriber_id", subscriber.ID)

	return subscriber, nil
}

// confirmationEmail builds the welcome message carrying the confirmation
// link in both text and HTML form.
func (s *Service) confirmationEmail(subscriber *domain.Subscriber, token string) mailer.Email {
	link := s.confirmationLink(token)

	textBody := fmt.Sprintf(`Welcome to our newsletter, %s!

Visit %s to confirm your subscription.

If you did not sign up, please ignore this email.`, subscriber.Name, link)

	htmlBody := fmt.Sprintf(`<p>Welcome to our newsletter, %s!</p>
<p>Click <a href=%q>here</a> to confirm your subscription.</p>
<p>If you did not sign up, please ignore this email.</p>`, subscriber.Name, link)

	return mailer.Email{
		To:       subscriber.Email.String(),
		Subject:  "Confirm your subscription",
		TextBody: textBody,
		HTMLBody: htmlBody,
	}
}

// confirmationLink embeds the token into the public confirm URL.
func (s *Service) confirmationLink(token string) string {
	return fmt.Sprintf("%s/subscriptions/confirm?token=%s", s.config.BaseURL, url.QueryEscape(token))
}
