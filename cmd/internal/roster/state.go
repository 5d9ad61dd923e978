package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	v1 "guestgate/shared/contracts/live/v1"
)

// ErrUnknownEvent is returned when a change names a different event than the snapshot.
var ErrUnknownEvent = errors.New("roster: change for another event")

// Action is a mutation of State.
type Action interface {
	apply(*State) error
}

// Snapshot replaces the whole roster.
type Snapshot struct {
	Payload v1.RosterSnapshotPayload
}

// Changed upserts one attendee.
type Changed struct {
	EventID  string
	Attendee v1.Attendee
}

// Removed drops one attendee.
type Removed struct {
	EventID  string
	TicketID string
}

// Counts summarizes the roster by RSVP and attendance.
type Counts struct {
	Total     int
	Invited   int
	Confirmed int
	Declined  int
	Attended  int
}

// State holds one event's attendees keyed by ticket id.
type State struct {
	mu        sync.RWMutex
	eventID   string
	eventName string
	multi     bool
	byID      map[string]v1.Attendee
	version   uint64
}

// New returns an empty State. It accepts changes only after the first Snapshot.
func New() *State {
	return &State{byID: make(map[string]v1.Attendee)}
}

// Apply runs a single action.
func (s *State) Apply(a Action) error {
	if a == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := a.apply(s); err != nil {
		return err
	}
	s.version++
	return nil
}

// ApplyEnvelope decodes a live feed envelope into an action and applies it.
// Envelope types that do not touch the roster are ignored.
func (s *State) ApplyEnvelope(env v1.Envelope) error {
	switch env.Type {
	case v1.TypeRosterSnapshot:
		var p v1.RosterSnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("roster: snapshot: %w", err)
		}
		return s.Apply(Snapshot{Payload: p})
	case v1.TypeAttendeeChanged:
		var p v1.AttendeeChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("roster: change: %w", err)
		}
		if p.Kind == v1.KindDeleted {
			return s.Apply(Removed{EventID: env.EventID, TicketID: p.Attendee.TicketID})
		}
		return s.Apply(Changed{EventID: env.EventID, Attendee: p.Attendee})
	default:
		return nil
	}
}

func (a Snapshot) apply(s *State) error {
	next := make(map[string]v1.Attendee, len(a.Payload.Attendees))
	for _, at := range a.Payload.Attendees {
		if at.TicketID == "" {
			continue
		}
		next[at.TicketID] = at
	}
	s.eventID = a.Payload.EventID
	s.eventName = a.Payload.EventName
	s.multi = a.Payload.AllowMultipleEntry
	s.byID = next
	return nil
}

func (a Changed) apply(s *State) error {
	if err := s.checkEvent(a.EventID); err != nil {
		return err
	}
	if a.Attendee.TicketID == "" {
		return fmt.Errorf("roster: change without ticket id")
	}
	s.byID[a.Attendee.TicketID] = a.Attendee
	return nil
}

func (a Removed) apply(s *State) error {
	if err := s.checkEvent(a.EventID); err != nil {
		return err
	}
	delete(s.byID, a.TicketID)
	return nil
}

func (s *State) checkEvent(eventID string) error {
	if s.eventID == "" || (eventID != "" && eventID != s.eventID) {
		return ErrUnknownEvent
	}
	return nil
}

// EventID returns the event of the last snapshot.
func (s *State) EventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventID
}

// EventName returns the event name of the last snapshot.
func (s *State) EventName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventName
}

// Version increases with every applied action.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns one attendee.
func (s *State) Get(ticketID string) (v1.Attendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[ticketID]
	return a, ok
}

func (s *State) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	for _, a := range s.byID {
		c.Total++
		switch a.RSVP {
		case "confirmed":
			c.Confirmed++
		case "declined":
			c.Declined++
		default:
			c.Invited++
		}
		if a.Attended {
			c.Attended++
		}
	}
	return c
}

// Search returns attendees whose name contains query (case-insensitive) or whose phone
// contains its digits, ordered by name. An empty query lists everyone.
func (s *State) Search(query string) []v1.Attendee {
	q := strings.ToLower(strings.TrimSpace(query))
	digits := onlyDigits(q)

	s.mu.RLock()
	out := make([]v1.Attendee, 0, len(s.byID))
	for _, a := range s.byID {
		if q == "" ||
			strings.Contains(strings.ToLower(a.Name), q) ||
			(digits != "" && strings.Contains(a.Phone, digits)) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].TicketID < out[j].TicketID
	})
	return out
}

func onlyDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
