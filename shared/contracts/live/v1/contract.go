// Package v1 defines the guestgate live feed protocol, version 1.
//
// The feed is one-way after the handshake: a device sends hello with its scanner
// token, the server answers hello_ack, a roster_snapshot, and then one
// attendee_changed envelope per change to the event's guest list.
//
// This package is dependency-light so that door clients can import it.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol negotiated by the gateway.
const Subprotocol = "guestgate.live.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts the handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (server -> client).
	TypeHelloAck = "hello_ack"
	// TypeRosterSnapshot carries the full guest list (server -> client).
	TypeRosterSnapshot = "roster_snapshot"
	// TypeAttendeeChanged carries one change (server -> client).
	TypeAttendeeChanged = "attendee_changed"
	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Change kinds carried by AttendeeChangedPayload.
const (
	KindCreated   = "created"
	KindRSVP      = "rsvp"
	KindCheckedIn = "checked_in"
	KindDeleted   = "deleted"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeRosterSnapshot,
		TypeAttendeeChanged,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to authenticate the feed.
type HelloPayload struct {
	Token string `json:"token"`
}

// HelloAckPayload confirms the feed and names the event it follows.
type HelloAckPayload struct {
	ConnectionID string `json:"connection_id"`
	EventID      string `json:"event_id"`
}

// Attendee is the wire shape of one guest.
type Attendee struct {
	TicketID     string     `json:"ticket_id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Category     string     `json:"category"`
	RSVP         string     `json:"rsvp"`
	RegretReason string     `json:"regret_reason,omitempty"`
	Attended     bool       `json:"attended"`
	AttendedAt   *time.Time `json:"attended_at,omitempty"`
}

// RosterSnapshotPayload replaces the client's whole view of the event.
type RosterSnapshotPayload struct {
	EventID            string     `json:"event_id"`
	EventName          string     `json:"event_name"`
	AllowMultipleEntry bool       `json:"allow_multiple_entry"`
	Attendees          []Attendee `json:"attendees"`
}

// AttendeeChangedPayload describes one change. For KindDeleted only TicketID is meaningful.
type AttendeeChangedPayload struct {
	Kind     string   `json:"kind"`
	Attendee Attendee `json:"attendee"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ, id, eventID string, ts time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      id,
		EventID: eventID,
		TS:      ts,
		Payload: b,
	}, nil
}
