package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthTotal counts PIN checks by result: ok, fail, unavailable.
var AuthTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "guestgate_scanner_auth_total",
		Help: "Scanner PIN checks by result",
	},
	[]string{"result"},
)
