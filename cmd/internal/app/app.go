// Package app wires the guestgate server runtime: config, logging, storage, HTTP routes
// and the live feed.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"guestgate/cmd/internal/api"
	"guestgate/cmd/internal/checkin"
	"guestgate/cmd/internal/realtime"
	"guestgate/cmd/internal/scanner"
	"guestgate/cmd/security/pin"
)

// App is the server runtime: it owns HTTP wiring and the services behind it.
type App struct {
	cfg Config
	log Logger

	backend *backend
	feed    *realtime.Feed
	api     *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	pins, err := pin.FromEnv()
	if err != nil {
		return nil, err
	}
	scannerCfg, err := scanner.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	b, err := newBackend(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*App, error) {
		b.close()
		return nil, err
	}

	feed := realtime.NewFeed(log)

	scanners, err := scanner.NewService(b.store, pins, scannerCfg, scanner.WithLogger(log))
	if err != nil {
		return fail(err)
	}
	authority, err := checkin.NewAuthority(b.store, checkin.WithPublisher(feed), checkin.WithLogger(log))
	if err != nil {
		return fail(err)
	}
	live, err := realtime.NewWSGateway(log, feed, scanners, b.store)
	if err != nil {
		return fail(err)
	}

	apiCfg := api.LoadConfigFromEnv()
	if apiCfg.AdminToken == "" {
		log.Warn("api.organizer.disabled", "reason", "GG_ADMIN_TOKEN not set")
	}
	h, err := api.NewHandler(log, apiCfg, api.Deps{
		Store:     b.store,
		Scanners:  scanners,
		Authority: authority,
		Feed:      feed,
		Live:      live,
	})
	if err != nil {
		return fail(err)
	}

	return &App{cfg: cfg, log: log, backend: b, feed: feed, api: h}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.backend, a.api)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	h = WithRequestLogging(h, a.log)
	h = WithRequestID(h)
	return h
}

// Close releases storage resources.
func (a *App) Close() {
	if a != nil && a.backend != nil {
		a.backend.close()
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", base,
		"live", wsBaseURL(base)+"/live",
		"store", a.backend.kind,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return "ws://" + httpURL
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
