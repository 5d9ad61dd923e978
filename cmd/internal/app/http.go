package app

import (
	"net/http"

	"guestgate/cmd/internal/api"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	gobreaker "github.com/sony/gobreaker/v2"
)

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, b *backend, h *api.Handler) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !b.durable {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if b.store.State() == gobreaker.StateOpen {
			http.Error(w, "store breaker open", http.StatusServiceUnavailable)
			return
		}
		if err := b.ping(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			log.Info("readyz.db.not_ready", "store", b.kind, "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	if h != nil {
		h.Register(mux)
	}
}
