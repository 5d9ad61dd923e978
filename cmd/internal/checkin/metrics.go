package checkin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan decisions by outcome; infrastructure failures use "unavailable".
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guestgate_checkin_scans_total",
			Help: "Ticket scans by outcome",
		},
		[]string{"outcome"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guestgate_checkin_scan_duration_seconds",
			Help:    "Time to decide a scan, including store round trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)
