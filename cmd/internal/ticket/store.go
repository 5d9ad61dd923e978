package ticket

import (
	"context"
	"time"
)

// Store is the persistence boundary for events, tickets and scanner sessions.
type Store interface {
	// Lookup returns the attendee behind a ticket id, or ErrNotFound.
	Lookup(ctx context.Context, ticketID string) (Attendee, error)
	// MarkAttended performs the attended=false -> true transition.
	// It returns true only for the call that changed the row.
	MarkAttended(ctx context.Context, ticketID string, now time.Time) (bool, error)
	GetEvent(ctx context.Context, eventID string) (Event, error)
	PINHash(ctx context.Context, eventID string) (string, error)

	CreateEvent(ctx context.Context, in NewEvent) (Event, error)
	// UpdateEvent replaces name, start, location, category and theme.
	UpdateEvent(ctx context.Context, eventID string, in EventUpdate) (Event, error)
	SetPINHash(ctx context.Context, eventID, pinHash string) error
	SetAllowMultipleEntry(ctx context.Context, eventID string, allow bool) error
	CreateAttendee(ctx context.Context, in NewAttendee) (Attendee, error)
	// CreateAttendees inserts all rows for eventID or none of them.
	CreateAttendees(ctx context.Context, eventID string, in []NewAttendee) ([]Attendee, error)
	UpdateRSVP(ctx context.Context, ticketID string, in RSVPUpdate) (Attendee, error)
	DeleteAttendee(ctx context.Context, ticketID string) error
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)

	CreateScannerSession(ctx context.Context, in NewSession) (ScannerSession, error)
	GetScannerSession(ctx context.Context, tokenHash string) (ScannerSession, error)
	RevokeScannerSession(ctx context.Context, tokenHash string, now time.Time) error

	Close() error
}
