package api

import (
	"guestgate/cmd/internal/checkin"
	"guestgate/cmd/internal/ticket"
)

func toEventResponse(ev ticket.Event) eventResponse {
	return eventResponse{
		ID:                 ev.ID,
		Name:               ev.Name,
		StartsAt:           ev.StartsAt,
		Location:           ev.Location,
		Category:           string(ev.Category),
		ThemeColor:         ev.ThemeColor,
		AllowMultipleEntry: ev.AllowMultipleEntry,
		GuestCount:         ev.GuestCount,
		CreatedAt:          ev.CreatedAt,
	}
}

func toAttendeeResponse(a ticket.Attendee) attendeeResponse {
	return attendeeResponse{
		TicketID:     a.ID,
		EventID:      a.EventID,
		Name:         a.Name,
		Phone:        a.Phone,
		Email:        a.Email,
		Category:     string(a.Category),
		RSVP:         string(a.RSVP),
		RegretReason: a.RegretReason,
		Attended:     a.Attended,
		AttendedAt:   a.AttendedAt,
		CreatedAt:    a.CreatedAt,
	}
}

// outcomeInvalidTicket is the only outcome scanners see for a ticket that is
// unknown or belongs to another event.
const outcomeInvalidTicket = "invalid_ticket"

func publicOutcome(o checkin.Outcome) string {
	switch o {
	case checkin.OutcomeNotFound, checkin.OutcomeWrongEvent:
		return outcomeInvalidTicket
	default:
		return string(o)
	}
}

func toScanResponse(res checkin.Result) scanResponse {
	out := scanResponse{
		Status:  string(res.Status()),
		Message: res.Message(),
		Outcome: publicOutcome(res.Outcome),
	}
	if out.Outcome == outcomeInvalidTicket {
		return out
	}
	if res.Attendee != nil {
		out.Guest = &guestResponse{
			TicketID:   res.Attendee.ID,
			Name:       res.Attendee.Name,
			Category:   string(res.Attendee.Category),
			RSVP:       string(res.Attendee.RSVP),
			AttendedAt: res.AttendedAt,
		}
	}
	return out
}
