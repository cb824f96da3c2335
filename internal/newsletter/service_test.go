package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSubscriberSource implements SubscriberSource.
type mockSubscriberSource struct {
	subscribers []domain.Subscriber
	listErr     error
}

func (m *mockSubscriberSource) ListConfirmed(_ context.Context) ([]domain.Subscriber, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.subscribers, nil
}

// mockSender records sends and fails per recipient. Safe for concurrent
// use by dispatch workers.
type mockSender struct {
	mu       sync.Mutex
	sent     []mailer.Email
	attempts map[string]int
	// failWith maps a recipient address to the error every attempt
	// returns. failUntil makes the first N attempts fail, then succeed.
	failWith  map[string]error
	failUntil map[string]int
}

func newMockSender() *mockSender {
	return &mockSender{
		attempts:  make(map[string]int),
		failWith:  make(map[string]error),
		failUntil: make(map[string]int),
	}
}

func (m *mockSender) Send(_ context.Context, email mailer.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts[email.To]++

	if err, ok := m.failWith[email.To]; ok {
		return err
	}
	if until, ok := m.failUntil[email.To]; ok && m.attempts[email.To] <= until {
		return mailer.NewUnavailableError(errors.New("gateway hiccup"))
	}

	m.sent = append(m.sent, email)
	return nil
}

func (m *mockSender) totalAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.attempts {
		total += n
	}
	return total
}

func confirmedSubscribers(t *testing.T, n int) []domain.Subscriber {
	t.Helper()
	subscribers := make([]domain.Subscriber, 0, n)
	for i := 0; i < n; i++ {
		email, err := domain.ParseEmail(fmt.Sprintf("reader%d@example.com", i))
		require.NoError(t, err)
		name, err := domain.ParseName(fmt.Sprintf("Reader %d", i))
		require.NoError(t, err)
		subscribers = append(subscribers, domain.Subscriber{
			ID:           fmt.Sprintf("subscriber-%d", i),
			Email:        email,
			Name:         name,
			Status:       domain.StatusConfirmed,
			SubscribedAt: time.Now(),
		})
	}
	return subscribers
}

func fastConfig() Config {
	return Config{
		NumWorkers:        3,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

var testIssue = domain.NewsletterIssue{
	Title:    "Issue #1",
	TextBody: "plain text",
	HTMLBody: "<p>html</p>",
}

func TestPublish_DeliversToAllConfirmed(t *testing.T) {
	source := &mockSubscriberSource{subscribers: confirmedSubscribers(t, 5)}
	sender := newMockSender()
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.Delivered)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Failures)
	assert.Len(t, sender.sent, 5)

	for _, email := range sender.sent {
		assert.Equal(t, "Issue #1", email.Subject)
		assert.Equal(t, "plain text", email.TextBody)
		assert.Equal(t, "<p>html</p>", email.HTMLBody)
	}
}

func TestPublish_FailedRecipientsAreIsolated(t *testing.T) {
	source := &mockSubscriberSource{subscribers: confirmedSubscribers(t, 5)}
	sender := newMockSender()
	sender.failWith["reader1@example.com"] = mailer.NewInvalidRecipientError(errors.New("mailbox does not exist"))
	sender.failWith["reader3@example.com"] = mailer.NewInvalidRecipientError(errors.New("mailbox does not exist"))
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 2, report.Failed)

	failedEmails := make(map[string]bool)
	for _, failure := range report.Failures {
		failedEmails[failure.Email] = true
		assert.NotEmpty(t, failure.SubscriberID)
		assert.NotEmpty(t, failure.Reason)
		assert.Equal(t, string(mailer.KindInvalidRecipient), failure.Kind)
	}
	assert.Equal(t, map[string]bool{
		"reader1@example.com": true,
		"reader3@example.com": true,
	}, failedEmails)
}

func TestPublish_NoConfirmedSubscribers(t *testing.T) {
	source := &mockSubscriberSource{}
	sender := newMockSender()
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 0, report.Failed)

	// The gateway is never contacted.
	assert.Equal(t, 0, sender.totalAttempts())
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	source := &mockSubscriberSource{subscribers: confirmedSubscribers(t, 1)}
	sender := newMockSender()
	sender.failUntil["reader0@example.com"] = 2
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 3, sender.attempts["reader0@example.com"])
}

func TestPublish_ExhaustedRetriesReportedAsFailure(t *testing.T) {
	source := &mockSubscriberSource{subscribers: confirmedSubscribers(t, 1)}
	sender := newMockSender()
	sender.failWith["reader0@example.com"] = mailer.NewUnavailableError(errors.New("gateway down"))
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, sender.attempts["reader0@example.com"])

	require.Len(t, report.Failures, 1)
	assert.Equal(t, string(mailer.KindUnavailable), report.Failures[0].Kind)
}

func TestPublish_PermanentFailureNotRetried(t *testing.T) {
	source := &mockSubscriberSource{subscribers: confirmedSubscribers(t, 1)}
	sender := newMockSender()
	sender.failWith["reader0@example.com"] = mailer.NewInvalidRecipientError(errors.New("mailbox does not exist"))
	service := NewService(source, sender, fastConfig())

	report, err := service.Publish(context.Background(), testIssue)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, sender.attempts["reader0@example.com"])
}

func TestPublish_ListError(t *testing.T) {
	source := &mockSubscriberSource{listErr: errors.New("connection refused")}
	sender := newMockSender()
	service := NewService(source, sender, fastConfig())

	_, err := service.Publish(context.Background(), testIssue)
	require.Error(t, err)
	assert.Equal(t, 0, sender.totalAttempts())
}

func TestBackoff(t *testing.T) {
	service := NewService(&mockSubscriberSource{}, newMockSender(), Config{
		NumWorkers:        1,
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	})

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first retry", 1, 1 * time.Second},
		{"second retry", 2, 2 * time.Second},
		{"third retry", 3, 4 * time.Second},
		{"fourth retry", 4, 8 * time.Second},
		{"capped at max", 5, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.backoff(tt.attempt))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 5, config.NumWorkers)
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 1*time.Second, config.InitialBackoff)
	assert.Equal(t, 30*time.Second, config.MaxBackoff)
	assert.Equal(t, 2.0, config.BackoffMultiplier)
	assert.Equal(t, 5*time.Minute, config.PublishTimeout)
}
