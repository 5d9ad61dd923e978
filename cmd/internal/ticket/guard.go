package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// GuardConfig tunes the circuit breaker around a Store.
type GuardConfig struct {
	Name             string
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
	MaxRequests      uint32
}

// DefaultGuardConfig opens after five consecutive infrastructure failures
// and probes again after ten seconds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:             "ticket-store",
		FailureThreshold: 5,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		MaxRequests:      3,
	}
}

// Guard wraps a Store in a circuit breaker. Expected outcomes (not found, bad input,
// conflicts) count as successes; only infrastructure errors trip the breaker.
// While open, every call fails fast with ErrUnavailable.
type Guard struct {
	next Store
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Store = (*Guard)(nil)

// NewGuard wraps next. log may be nil.
func NewGuard(next Store, cfg GuardConfig, log *slog.Logger) (*Guard, error) {
	if next == nil {
		return nil, ErrInvalidInput
	}
	def := DefaultGuardConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if log == nil {
		log = slog.Default()
	}

	BreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("store.breaker.state",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Guard{next: next, name: cfg.Name, cb: cb}, nil
}

// State returns the breaker state for readiness reporting.
func (g *Guard) State() gobreaker.State { return g.cb.State() }

func (g *Guard) Lookup(ctx context.Context, ticketID string) (Attendee, error) {
	return run(g, func() (Attendee, error) { return g.next.Lookup(ctx, ticketID) })
}

func (g *Guard) MarkAttended(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	return run(g, func() (bool, error) { return g.next.MarkAttended(ctx, ticketID, now) })
}

func (g *Guard) GetEvent(ctx context.Context, eventID string) (Event, error) {
	return run(g, func() (Event, error) { return g.next.GetEvent(ctx, eventID) })
}

func (g *Guard) PINHash(ctx context.Context, eventID string) (string, error) {
	return run(g, func() (string, error) { return g.next.PINHash(ctx, eventID) })
}

func (g *Guard) CreateEvent(ctx context.Context, in NewEvent) (Event, error) {
	return run(g, func() (Event, error) { return g.next.CreateEvent(ctx, in) })
}

func (g *Guard) UpdateEvent(ctx context.Context, eventID string, in EventUpdate) (Event, error) {
	return run(g, func() (Event, error) { return g.next.UpdateEvent(ctx, eventID, in) })
}

func (g *Guard) SetPINHash(ctx context.Context, eventID, pinHash string) error {
	_, err := run(g, func() (struct{}, error) { return struct{}{}, g.next.SetPINHash(ctx, eventID, pinHash) })
	return err
}

func (g *Guard) SetAllowMultipleEntry(ctx context.Context, eventID string, allow bool) error {
	_, err := run(g, func() (struct{}, error) { return struct{}{}, g.next.SetAllowMultipleEntry(ctx, eventID, allow) })
	return err
}

func (g *Guard) CreateAttendee(ctx context.Context, in NewAttendee) (Attendee, error) {
	return run(g, func() (Attendee, error) { return g.next.CreateAttendee(ctx, in) })
}

func (g *Guard) CreateAttendees(ctx context.Context, eventID string, in []NewAttendee) ([]Attendee, error) {
	return run(g, func() ([]Attendee, error) { return g.next.CreateAttendees(ctx, eventID, in) })
}

func (g *Guard) UpdateRSVP(ctx context.Context, ticketID string, in RSVPUpdate) (Attendee, error) {
	return run(g, func() (Attendee, error) { return g.next.UpdateRSVP(ctx, ticketID, in) })
}

func (g *Guard) DeleteAttendee(ctx context.Context, ticketID string) error {
	_, err := run(g, func() (struct{}, error) { return struct{}{}, g.next.DeleteAttendee(ctx, ticketID) })
	return err
}

func (g *Guard) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	return run(g, func() ([]Attendee, error) { return g.next.ListAttendees(ctx, eventID) })
}

func (g *Guard) CreateScannerSession(ctx context.Context, in NewSession) (ScannerSession, error) {
	return run(g, func() (ScannerSession, error) { return g.next.CreateScannerSession(ctx, in) })
}

func (g *Guard) GetScannerSession(ctx context.Context, tokenHash string) (ScannerSession, error) {
	return run(g, func() (ScannerSession, error) { return g.next.GetScannerSession(ctx, tokenHash) })
}

func (g *Guard) RevokeScannerSession(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := run(g, func() (struct{}, error) { return struct{}{}, g.next.RevokeScannerSession(ctx, tokenHash, now) })
	return err
}

func (g *Guard) Close() error { return g.next.Close() }

// run executes fn through the breaker and restores its typed result.
func run[T any](g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	out, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			BreakerRejections.WithLabelValues(g.name).Inc()
			return zero, fmt.Errorf("ticket: %s: %w: %w", g.name, ErrUnavailable, err)
		}
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("ticket: %s: unexpected result type %T", g.name, out)
	}
	return typed, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
