package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guestgate_live_subscribers",
			Help: "Live feed subscriptions across all events",
		},
	)

	DroppedChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guestgate_live_dropped_changes_total",
			Help: "Changes dropped because a subscriber queue was full",
		},
	)
)
