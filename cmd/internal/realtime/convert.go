package realtime

import (
	"time"

	"guestgate/cmd/internal/ticket"
	v1 "guestgate/shared/contracts/live/v1"
)

// WireAttendee converts a stored attendee into its live feed shape.
func WireAttendee(a ticket.Attendee) v1.Attendee {
	out := v1.Attendee{
		TicketID:   a.ID,
		Name:       a.Name,
		Phone:      a.Phone,
		Category:   string(a.Category),
		RSVP:       string(a.RSVP),
		Attended:   a.Attended,
		AttendedAt: a.AttendedAt,
	}
	if a.RegretReason != nil {
		out.RegretReason = *a.RegretReason
	}
	return out
}

func snapshotEnvelope(ev ticket.Event, attendees []ticket.Attendee, now time.Time) (v1.Envelope, error) {
	wire := make([]v1.Attendee, 0, len(attendees))
	for _, a := range attendees {
		wire = append(wire, WireAttendee(a))
	}
	return v1.NewEnvelope(v1.TypeRosterSnapshot, NewEnvelopeID(now), ev.ID, now, v1.RosterSnapshotPayload{
		EventID:            ev.ID,
		EventName:          ev.Name,
		AllowMultipleEntry: ev.AllowMultipleEntry,
		Attendees:          wire,
	})
}

func changeEnvelope(c Change) (v1.Envelope, error) {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return v1.NewEnvelope(v1.TypeAttendeeChanged, NewEnvelopeID(ts), c.EventID, ts, v1.AttendeeChangedPayload{
		Kind:     c.Kind,
		Attendee: WireAttendee(c.Attendee),
	})
}
