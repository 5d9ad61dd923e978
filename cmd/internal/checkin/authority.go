package checkin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/realtime"
	"guestgate/cmd/internal/ticket"
	v1 "guestgate/shared/contracts/live/v1"
)

// Publisher receives attendee changes caused by a check-in.
type Publisher interface {
	Publish(realtime.Change)
}

// Authority is the only component that moves a ticket to attended.
type Authority struct {
	store ticket.Store
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

// Option configures the Authority.
type Option func(*Authority)

// WithPublisher sets where first entries are announced. Nil disables publishing.
func WithPublisher(p Publisher) Option {
	return func(a *Authority) { a.pub = p }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Authority) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthority constructs an Authority over store.
func NewAuthority(store ticket.Store, opts ...Option) (*Authority, error) {
	if store == nil {
		return nil, ticket.ErrInvalidInput
	}
	a := &Authority{
		store: store,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Scan decides a raw scanner payload for eventID.
// Malformed payloads return OutcomeInvalidPayload without touching the store.
func (a *Authority) Scan(ctx context.Context, eventID string, raw []byte) (Result, error) {
	start := time.Now()

	ticketID, err := ParsePayload(raw)
	if err != nil {
		a.log.Info("checkin.scan.invalid_payload", "event_id", eventID, "bytes", len(raw))
		return a.finish(start, eventID, Result{Outcome: OutcomeInvalidPayload, EventID: eventID}, nil)
	}
	res, err := a.decide(ctx, eventID, ticketID)
	return a.finish(start, eventID, res, err)
}

// CheckIn decides an already-extracted ticket id, as used by manual staff check-in.
func (a *Authority) CheckIn(ctx context.Context, eventID, ticketID string) (Result, error) {
	start := time.Now()
	res, err := a.decide(ctx, eventID, ticketID)
	return a.finish(start, eventID, res, err)
}

func (a *Authority) decide(ctx context.Context, eventID, ticketID string) (Result, error) {
	res := Result{TicketID: ticketID, EventID: eventID}

	id, ok := ids.Normalize(ticketID)
	if !ok {
		a.log.Info("checkin.scan.not_found", "event_id", eventID)
		res.Outcome = OutcomeNotFound
		return res, nil
	}
	res.TicketID = id

	att, err := a.store.Lookup(ctx, id)
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		a.log.Info("checkin.scan.not_found", "event_id", eventID, "ticket_id", id)
		res.Outcome = OutcomeNotFound
		return res, nil
	case err != nil:
		return Result{}, err
	}

	if att.EventID != eventID {
		// Audited separately from not_found; the device sees the same message.
		a.log.Warn("checkin.scan.wrong_event", "event_id", eventID, "ticket_event_id", att.EventID, "ticket_id", id)
		res.Outcome = OutcomeWrongEvent
		return res, nil
	}

	ev, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		// The attendee references this event, so a missing row is a store fault.
		if errors.Is(err, ticket.ErrNotFound) {
			return Result{}, errors.Join(ticket.ErrUnavailable, err)
		}
		return Result{}, err
	}

	if att.Attended {
		return a.alreadyAttended(res, att, ev.AllowMultipleEntry), nil
	}

	now := a.now()
	won, err := a.store.MarkAttended(ctx, id, now)
	if err != nil {
		return Result{}, err
	}
	if !won {
		// Another device completed the transition between Lookup and MarkAttended.
		latest, err := a.store.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, ticket.ErrNotFound) {
				res.Outcome = OutcomeNotFound
				return res, nil
			}
			return Result{}, err
		}
		return a.alreadyAttended(res, latest, ev.AllowMultipleEntry), nil
	}

	att.Attended = true
	att.AttendedAt = &now
	res.Outcome = OutcomeFirstEntry
	res.Attendee = &att
	res.AttendedAt = &now

	a.log.Info("checkin.scan.first_entry", "event_id", eventID, "ticket_id", id)
	if a.pub != nil {
		a.pub.Publish(realtime.Change{Kind: v1.KindCheckedIn, EventID: eventID, Attendee: att, At: now})
	}
	return res, nil
}

func (a *Authority) alreadyAttended(res Result, att ticket.Attendee, allowMultiple bool) Result {
	res.Attendee = &att
	res.AttendedAt = att.AttendedAt
	if allowMultiple {
		res.Outcome = OutcomeRepeatEntry
	} else {
		res.Outcome = OutcomeDuplicate
		a.log.Info("checkin.scan.duplicate", "event_id", res.EventID, "ticket_id", res.TicketID)
	}
	return res
}

func (a *Authority) finish(start time.Time, eventID string, res Result, err error) (Result, error) {
	ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ScansTotal.WithLabelValues("unavailable").Inc()
		a.log.Error("checkin.scan.unavailable", "event_id", eventID, "err", err)
		return Result{}, err
	}
	ScansTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}
