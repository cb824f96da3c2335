package newsletter

import (
	"sync"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/mailer"
)

// DeliveryFailure identifies one recipient the issue could not be
// delivered to, with the reason for operational follow-up.
type DeliveryFailure struct {
	SubscriberID string `json:"subscriber_id"`
	Email        string `json:"email"`
	Reason       string `json:"reason"`
	Kind         string `json:"kind"`
}

// DispatchReport is the aggregate outcome of one publish run. Failed
// sends are never dropped silently; every one appears in Failures.
type DispatchReport struct {
	Total     int               `json:"total"`
	Delivered int               `json:"delivered"`
	Failed    int               `json:"failed"`
	Failures  []DeliveryFailure `json:"failures,omitempty"`
}

// reportAccumulator collects per-recipient outcomes from concurrent
// dispatch workers.
type reportAccumulator struct {
	mu     sync.Mutex
	report DispatchReport
}

func newReportAccumulator(total int) *reportAccumulator {
	return &reportAccumulator{
		report: DispatchReport{
			Total:    total,
			Failures: make([]DeliveryFailure, 0),
		},
	}
}

func (a *reportAccumulator) recordDelivered() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Delivered++
}

func (a *reportAccumulator) recordFailure(subscriber domain.Subscriber, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Failed++
	a.report.Failures = append(a.report.Failures, DeliveryFailure{
		SubscriberID: subscriber.ID,
		Email:        subscriber.Email.String(),
		Reason:       err.Error(),
		Kind:         string(mailer.Kind(err)),
	})
}

// snapshot returns the finished report. Call only after all workers
// have stopped.
func (a *reportAccumulator) snapshot() *DispatchReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	report := a.report
	return &report
}
