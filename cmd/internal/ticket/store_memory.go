package ticket

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps everything in process. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[string]Event
	pinHashes map[string]string
	attendees map[string]Attendee
	sessions  map[string]ScannerSession
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]Event),
		pinHashes: make(map[string]string),
		attendees: make(map[string]Attendee),
		sessions:  make(map[string]ScannerSession),
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, ticketID string) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attendees[ticketID]
	if !ok {
		return Attendee{}, ErrNotFound
	}
	return cloneAttendee(a), nil
}

func (s *MemoryStore) MarkAttended(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attendees[ticketID]
	if !ok || a.Attended {
		return false, nil
	}
	at := now
	a.Attended = true
	a.AttendedAt = &at
	s.attendees[ticketID] = a
	return true, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

func (s *MemoryStore) PINHash(ctx context.Context, eventID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pinHashes[eventID]
	if !ok {
		return "", ErrNotFound
	}
	return h, nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, in NewEvent) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[in.ID]; exists {
		return Event{}, ErrConflict
	}
	ev := Event{
		ID:                 in.ID,
		Name:               in.Name,
		StartsAt:           in.StartsAt,
		Location:           in.Location,
		Category:           in.Category,
		ThemeColor:         in.ThemeColor,
		AllowMultipleEntry: in.AllowMultipleEntry,
		CreatedAt:          in.CreatedAt,
	}
	s.events[ev.ID] = ev
	s.pinHashes[ev.ID] = in.PINHash
	return ev, nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, eventID string, in EventUpdate) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return Event{}, ErrNotFound
	}
	ev.Name = in.Name
	ev.StartsAt = in.StartsAt
	ev.Location = in.Location
	ev.Category = in.Category
	ev.ThemeColor = in.ThemeColor
	s.events[eventID] = ev
	return ev, nil
}

func (s *MemoryStore) SetPINHash(ctx context.Context, eventID, pinHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(pinHash) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return ErrNotFound
	}
	s.pinHashes[eventID] = pinHash
	return nil
}

func (s *MemoryStore) SetAllowMultipleEntry(ctx context.Context, eventID string, allow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	ev.AllowMultipleEntry = allow
	s.events[eventID] = ev
	return nil
}

func (s *MemoryStore) CreateAttendee(ctx context.Context, in NewAttendee) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	if err := in.validate(); err != nil {
		return Attendee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[in.EventID]
	if !ok {
		return Attendee{}, ErrNotFound
	}
	if _, exists := s.attendees[in.ID]; exists {
		return Attendee{}, ErrConflict
	}
	a := Attendee{
		ID:        in.ID,
		EventID:   in.EventID,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		Category:  in.Category,
		RSVP:      RSVPInvited,
		CreatedAt: in.CreatedAt,
	}
	s.attendees[a.ID] = a
	ev.GuestCount++
	s.events[ev.ID] = ev
	return cloneAttendee(a), nil
}

func (s *MemoryStore) CreateAttendees(ctx context.Context, eventID string, in []NewAttendee) ([]Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBatch(eventID, in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, row := range in {
		if _, exists := s.attendees[row.ID]; exists {
			return nil, ErrConflict
		}
	}
	out := make([]Attendee, 0, len(in))
	for _, row := range in {
		a := row.attendee()
		s.attendees[a.ID] = a
		out = append(out, cloneAttendee(a))
	}
	ev.GuestCount += len(in)
	s.events[ev.ID] = ev
	return out, nil
}

func (s *MemoryStore) UpdateRSVP(ctx context.Context, ticketID string, in RSVPUpdate) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	in, err := in.normalized()
	if err != nil {
		return Attendee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attendees[ticketID]
	if !ok {
		return Attendee{}, ErrNotFound
	}
	a.RSVP = in.Status
	a.RegretReason = in.RegretReason
	s.attendees[ticketID] = a
	return cloneAttendee(a), nil
}

func (s *MemoryStore) DeleteAttendee(ctx context.Context, ticketID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attendees[ticketID]
	if !ok {
		return ErrNotFound
	}
	delete(s.attendees, ticketID)
	if ev, ok := s.events[a.EventID]; ok && ev.GuestCount > 0 {
		ev.GuestCount--
		s.events[ev.ID] = ev
	}
	return nil
}

func (s *MemoryStore) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Attendee, 0)
	for _, a := range s.attendees {
		if a.EventID == eventID {
			out = append(out, cloneAttendee(a))
		}
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateScannerSession(ctx context.Context, in NewSession) (ScannerSession, error) {
	if err := ctx.Err(); err != nil {
		return ScannerSession{}, err
	}
	if err := in.validate(); err != nil {
		return ScannerSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[in.EventID]; !ok {
		return ScannerSession{}, ErrNotFound
	}
	if _, exists := s.sessions[in.TokenHash]; exists {
		return ScannerSession{}, ErrConflict
	}
	ss := ScannerSession{
		ID:        in.ID,
		EventID:   in.EventID,
		TokenHash: in.TokenHash,
		Device:    in.Device,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	s.sessions[ss.TokenHash] = ss
	return ss, nil
}

func (s *MemoryStore) GetScannerSession(ctx context.Context, tokenHash string) (ScannerSession, error) {
	if err := ctx.Err(); err != nil {
		return ScannerSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[tokenHash]
	if !ok {
		return ScannerSession{}, ErrNotFound
	}
	return ss, nil
}

func (s *MemoryStore) RevokeScannerSession(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[tokenHash]
	if !ok {
		return ErrNotFound
	}
	if ss.RevokedAt == nil {
		at := now
		ss.RevokedAt = &at
		s.sessions[tokenHash] = ss
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneAttendee(a Attendee) Attendee {
	if a.Email != nil {
		e := *a.Email
		a.Email = &e
	}
	if a.RegretReason != nil {
		r := *a.RegretReason
		a.RegretReason = &r
	}
	if a.AttendedAt != nil {
		t := *a.AttendedAt
		a.AttendedAt = &t
	}
	return a
}
