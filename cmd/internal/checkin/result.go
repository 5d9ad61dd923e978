package checkin

import (
	"time"

	"guestgate/cmd/internal/ticket"
)

// Outcome is the decision for one scan.
type Outcome string

const (
	OutcomeFirstEntry     Outcome = "first_entry"
	OutcomeRepeatEntry    Outcome = "repeat_entry"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeInvalidPayload Outcome = "invalid_payload"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeWrongEvent     Outcome = "wrong_event"
)

// Status is the tri-state a door device renders.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
	StatusError     Status = "error"
)

// Result describes a scan decision. Attendee is set whenever the ticket belongs
// to the scanning event.
type Result struct {
	Outcome    Outcome
	TicketID   string
	EventID    string
	Attendee   *ticket.Attendee
	AttendedAt *time.Time
}

// Accepted reports whether the guest may walk in.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeFirstEntry || r.Outcome == OutcomeRepeatEntry
}

func (r Result) Status() Status {
	switch r.Outcome {
	case OutcomeFirstEntry, OutcomeRepeatEntry:
		return StatusSuccess
	case OutcomeDuplicate:
		return StatusDuplicate
	default:
		return StatusError
	}
}

// Message is the short operator text. Not-found and wrong-event read the same
// so the door screen does not reveal which tickets exist.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeFirstEntry:
		return "Entry allowed"
	case OutcomeRepeatEntry:
		return "Repeat entry"
	case OutcomeDuplicate:
		return "Ticket already used"
	case OutcomeInvalidPayload:
		return "Invalid code"
	default:
		return "Invalid ticket"
	}
}
