// Package newsletter implements issue dispatch to confirmed subscribers.
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/mailer"
)

// SubscriberSource provides the confirmed-subscriber snapshot a dispatch
// run fans out to.
type SubscriberSource interface {
	ListConfirmed(ctx context.Context) ([]domain.Subscriber, error)
}

// Config contains dispatch configuration.
type Config struct {
	// NumWorkers bounds the dispatch fan-out concurrency.
	NumWorkers int
	// MaxAttempts bounds per-recipient retries within one publish run.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// PublishTimeout bounds a whole dispatch run. In-flight sends
	// abandoned at the deadline are reported as failed. Zero disables
	// the bound.
	PublishTimeout time.Duration
}

// DefaultConfig returns default dispatch configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:        5,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		PublishTimeout:    5 * time.Minute,
	}
}

// Service dispatches newsletter issues.
type Service struct {
	subscribers SubscriberSource
	sender      mailer.Sender
	config      Config
}

// NewService creates a new newsletter dispatch service.
func NewService(subscribers SubscriberSource, sender mailer.Sender, config Config) *Service {
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultConfig().NumWorkers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Service{
		subscribers: subscribers,
		sender:      sender,
		config:      config,
	}
}

// Publish delivers an issue to every subscriber confirmed at call time.
//
// The confirmed set is a point-in-time snapshot: subscribers confirmed
// after the listing are not included in this run. Each recipient is
// handled independently by a bounded worker pool; one failed send never
// blocks or aborts the others, it is recorded in the report instead.
// Retriable gateway failures are retried with exponential backoff,
// permanent recipient rejections fail immediately for this run. Issues
// are never re-dispatched automatically.
func (s *Service) Publish(ctx context.Context, issue domain.NewsletterIssue) (*DispatchReport, error) {
	if s.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PublishTimeout)
		defer cancel()
	}

	confirmed, err := s.subscribers.ListConfirmed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list confirmed subscribers: %w", err)
	}

	accumulator := newReportAccumulator(len(confirmed))

	// No confirmed subscribers: no gateway calls at all.
	if len(confirmed) == 0 {
		recordIssuePublished()
		return accumulator.snapshot(), nil
	}

	slog.Info("dispatching newsletter issue",
		"title", issue.Title,
		"subscribers", len(confirmed),
		"workers", s.config.NumWorkers,
	)

	jobs := make(chan domain.Subscriber)
	var wg sync.WaitGroup

	workers := s.config.NumWorkers
	if workers > len(confirmed) {
		workers = len(confirmed)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for subscriber := range jobs {
				s.deliver(ctx, issue, subscriber, accumulator)
			}
		}()
	}

	for _, subscriber := range confirmed {
		jobs <- subscriber
	}
	close(jobs)
	wg.Wait()

	report := accumulator.snapshot()
	recordIssuePublished()

	slog.Info("newsletter issue dispatched",
		"title", issue.Title,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)

	return report, nil
}

// deliver attempts one recipient and records the outcome.
func (s *Service) deliver(ctx context.Context, issue domain.NewsletterIssue, subscriber domain.Subscriber, accumulator *reportAccumulator) {
	start := time.Now()
	err := s.sendWithRetry(ctx, issue, subscriber)
	duration := time.Since(start)

	if err != nil {
		accumulator.recordFailure(subscriber, err)
		recordDelivery("failed")

		slog.Warn("failed to deliver newsletter issue",
			"subscriber_id", subscriber.ID,
			"kind", mailer.Kind(err),
			"error", err,
		)
		return
	}

	accumulator.recordDelivered()
	recordDelivery("delivered")
	recordDeliveryDuration(duration)
}

// sendWithRetry retries retriable gateway failures with exponential
// backoff, bounded by MaxAttempts and the publish deadline.
func (s *Service) sendWithRetry(ctx context.Context, issue domain.NewsletterIssue, subscriber domain.Subscriber) error {
	email := mailer.Email{
		To:       subscriber.Email.String(),
		Subject:  issue.Title,
		TextBody: issue.TextBody,
		HTMLBody: issue.HTMLBody,
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish deadline exceeded: %w", err)
		}

		err := s.sender.Send(ctx, email)
		if err == nil {
			return nil
		}
		lastErr = err

		if !mailer.IsRetryable(err) {
			return err
		}

		if attempt < s.config.MaxAttempts {
			if !s.sleep(ctx, s.backoff(attempt)) {
				return fmt.Errorf("publish deadline exceeded: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("max attempts exceeded: %w", lastErr)
}

// backoff returns the wait before the next attempt, capped at MaxBackoff.
func (s *Service) backoff(attempt int) time.Duration {
	backoff := float64(s.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= s.config.BackoffMultiplier
	}
	if backoff > float64(s.config.MaxBackoff) {
		backoff = float64(s.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// sleep waits for d or context cancellation. Returns false if cancelled.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
