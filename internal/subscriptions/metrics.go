package subscriptions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "letterdrop"

var (
	subscribersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "created_total",
			Help:      "Total subscribers created in pending state",
		},
	)

	subscribersConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "confirmed_total",
			Help:      "Total subscribers transitioned to confirmed",
		},
	)
)

func recordSubscriberCreated() {
	subscribersCreated.Inc()
}

func recordSubscriberConfirmed() {
	subscribersConfirmed.Inc()
}
