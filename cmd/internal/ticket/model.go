package ticket

import (
	"strings"
	"time"
	"unicode/utf8"

	"guestgate/cmd/identity/ids"
)

// EventCategory groups events for theming.
type EventCategory string

const (
	EventSocial   EventCategory = "social"
	EventBusiness EventCategory = "business"
)

// Valid reports whether c is a known category.
func (c EventCategory) Valid() bool {
	return c == EventSocial || c == EventBusiness
}

// GuestCategory is the attendee's seating/handling class.
type GuestCategory string

const (
	GuestGeneral GuestCategory = "general"
	GuestVIP     GuestCategory = "vip"
	GuestFamily  GuestCategory = "family"
)

func (c GuestCategory) Valid() bool {
	switch c {
	case GuestGeneral, GuestVIP, GuestFamily:
		return true
	default:
		return false
	}
}

// RSVPStatus is the guest's answer to the invitation. It does not gate entry.
type RSVPStatus string

const (
	RSVPInvited   RSVPStatus = "invited"
	RSVPConfirmed RSVPStatus = "confirmed"
	RSVPDeclined  RSVPStatus = "declined"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPInvited, RSVPConfirmed, RSVPDeclined:
		return true
	default:
		return false
	}
}

const (
	MaxNameLen         = 100
	MaxLocationLen     = 200
	MaxRegretReasonLen = 500
	MinPhoneDigits     = 8
	MaxPhoneDigits     = 20
	MaxDeviceLen       = 128
)

// Event is an organizer-owned gathering. The PIN hash is never part of this value;
// use Store.PINHash.
type Event struct {
	ID                 string
	Name               string
	StartsAt           time.Time
	Location           string
	Category           EventCategory
	ThemeColor         string
	AllowMultipleEntry bool
	GuestCount         int
	CreatedAt          time.Time
}

// Attendee is one ticket. Its ID is what the QR code carries.
type Attendee struct {
	ID           string
	EventID      string
	Name         string
	Phone        string
	Email        *string
	Category     GuestCategory
	RSVP         RSVPStatus
	RegretReason *string
	Attended     bool
	AttendedAt   *time.Time
	CreatedAt    time.Time
}

// ScannerSession is a door device authorized for one event.
// Only the hash of the client-held token is stored.
type ScannerSession struct {
	ID        string
	EventID   string
	TokenHash string
	Device    string
	CreatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// Active reports whether the session may still be used at now.
func (s ScannerSession) Active(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

// NewEvent is a normalized event insert payload.
type NewEvent struct {
	ID                 string
	Name               string
	StartsAt           time.Time
	Location           string
	Category           EventCategory
	ThemeColor         string
	PINHash            string
	AllowMultipleEntry bool
	CreatedAt          time.Time
}

// NewAttendee is a normalized attendee insert payload. RSVP starts as invited.
type NewAttendee struct {
	ID        string
	EventID   string
	Name      string
	Phone     string
	Email     *string
	Category  GuestCategory
	CreatedAt time.Time
}

// EventUpdate replaces an event's editable details. PIN and entry policy have
// their own setters.
type EventUpdate struct {
	Name       string
	StartsAt   time.Time
	Location   string
	Category   EventCategory
	ThemeColor string
}

// MaxBatchAttendees bounds one CreateAttendees call.
const MaxBatchAttendees = 1000

// RSVPUpdate records a guest's answer. RegretReason is kept only for declines.
type RSVPUpdate struct {
	Status       RSVPStatus
	RegretReason *string
}

// NewSession is a normalized scanner session insert payload.
type NewSession struct {
	ID        string
	EventID   string
	TokenHash string
	Device    string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

func (in NewEvent) validate() error {
	if !ids.Valid(in.ID) || in.CreatedAt.IsZero() || in.StartsAt.IsZero() {
		return ErrInvalidInput
	}
	if !textOK(in.Name, 1, MaxNameLen) || utf8.RuneCountInString(in.Location) > MaxLocationLen {
		return ErrInvalidInput
	}
	if !in.Category.Valid() || strings.TrimSpace(in.PINHash) == "" {
		return ErrInvalidInput
	}
	return nil
}

func (in EventUpdate) validate() error {
	if in.StartsAt.IsZero() || !in.Category.Valid() {
		return ErrInvalidInput
	}
	if !textOK(in.Name, 1, MaxNameLen) || utf8.RuneCountInString(in.Location) > MaxLocationLen {
		return ErrInvalidInput
	}
	return nil
}

// validateBatch checks that every row is valid, belongs to eventID and has a distinct id.
func validateBatch(eventID string, rows []NewAttendee) error {
	if len(rows) == 0 || len(rows) > MaxBatchAttendees {
		return ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(rows))
	for _, in := range rows {
		if in.EventID != eventID {
			return ErrInvalidInput
		}
		if err := in.validate(); err != nil {
			return err
		}
		if _, dup := seen[in.ID]; dup {
			return ErrConflict
		}
		seen[in.ID] = struct{}{}
	}
	return nil
}

func (in NewAttendee) attendee() Attendee {
	return Attendee{
		ID:        in.ID,
		EventID:   in.EventID,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		Category:  in.Category,
		RSVP:      RSVPInvited,
		CreatedAt: in.CreatedAt,
	}
}

func (in NewAttendee) validate() error {
	if !ids.Valid(in.ID) || !ids.Valid(in.EventID) || in.CreatedAt.IsZero() {
		return ErrInvalidInput
	}
	if !textOK(in.Name, 1, MaxNameLen) || !PhoneOK(in.Phone) || !in.Category.Valid() {
		return ErrInvalidInput
	}
	return nil
}

// normalized drops the regret reason for non-declines and rejects oversized reasons.
func (in RSVPUpdate) normalized() (RSVPUpdate, error) {
	if !in.Status.Valid() {
		return RSVPUpdate{}, ErrInvalidInput
	}
	if in.Status != RSVPDeclined {
		return RSVPUpdate{Status: in.Status}, nil
	}
	if in.RegretReason != nil {
		r := strings.TrimSpace(*in.RegretReason)
		if utf8.RuneCountInString(r) > MaxRegretReasonLen {
			return RSVPUpdate{}, ErrInvalidInput
		}
		if r == "" {
			return RSVPUpdate{Status: in.Status}, nil
		}
		return RSVPUpdate{Status: in.Status, RegretReason: &r}, nil
	}
	return in, nil
}

func (in NewSession) validate() error {
	if !ids.Valid(in.ID) || !ids.Valid(in.EventID) || in.CreatedAt.IsZero() {
		return ErrInvalidInput
	}
	if len(in.TokenHash) != 64 || utf8.RuneCountInString(in.Device) > MaxDeviceLen {
		return ErrInvalidInput
	}
	return nil
}

// PhoneOK reports whether s is a digits-only phone number of plausible length.
func PhoneOK(s string) bool {
	if len(s) < MinPhoneDigits || len(s) > MaxPhoneDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func textOK(s string, minRunes, maxRunes int) bool {
	if strings.TrimSpace(s) != s {
		return false
	}
	n := utf8.RuneCountInString(s)
	return n >= minRunes && n <= maxRunes
}
