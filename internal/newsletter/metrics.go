package newsletter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "letterdrop"

var (
	issuesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "issues_published_total",
			Help:      "Total newsletter issues dispatched",
		},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "deliveries_total",
			Help:      "Total per-recipient delivery outcomes",
		},
		[]string{"result"},
	)

	deliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering an issue to one recipient, retries included",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func recordIssuePublished() {
	issuesPublished.Inc()
}

func recordDelivery(result string) {
	deliveries.WithLabelValues(result).Inc()
}

func recordDeliveryDuration(d time.Duration) {
	deliveryDuration.Observe(d.Seconds())
}
