package ticket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guestgate_store_breaker_state",
			Help: "Circuit breaker state of the ticket store (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// BreakerRejections counts calls refused while the breaker was open.
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guestgate_store_breaker_rejections_total",
			Help: "Store calls rejected by the circuit breaker",
		},
		[]string{"name"},
	)
)
