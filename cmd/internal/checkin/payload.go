package checkin

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"guestgate/cmd/identity/ids"
)

const (
	// PayloadVersion is the only QR schema version accepted.
	PayloadVersion = 1
	// MaxPayloadBytes bounds what a scanner may submit.
	MaxPayloadBytes = 512
)

// ErrInvalidPayload is returned by ParsePayload for anything that is not a v1 ticket code.
var ErrInvalidPayload = errors.New("invalid ticket payload")

// Payload is the JSON object printed into each ticket's QR code:
//
//	{"v":1,"ticket_id":"01J..."}
type Payload struct {
	V        int    `json:"v"`
	TicketID string `json:"ticket_id"`
}

// ParsePayload validates raw scanner output and returns the canonical ticket id.
// Unknown fields, trailing data, other versions and bare ids are rejected.
func ParsePayload(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || len(raw) > MaxPayloadBytes || raw[0] != '{' {
		return "", ErrInvalidPayload
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return "", ErrInvalidPayload
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return "", ErrInvalidPayload
	}
	if p.V != PayloadVersion {
		return "", ErrInvalidPayload
	}

	id, ok := ids.Normalize(p.TicketID)
	if !ok {
		return "", ErrInvalidPayload
	}
	return id, nil
}

// EncodePayload returns the QR content for a ticket id.
func EncodePayload(ticketID string) (string, error) {
	id, ok := ids.Normalize(ticketID)
	if !ok {
		return "", ErrInvalidPayload
	}
	b, err := json.Marshal(Payload{V: PayloadVersion, TicketID: id})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
