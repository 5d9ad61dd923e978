package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "hello", env: Envelope{V: Version, Type: TypeHello}},
		{name: "changed", env: Envelope{V: Version, Type: TypeAttendeeChanged}},
		{name: "missing version", env: Envelope{Type: TypeHello}, wantErr: true},
		{name: "other version", env: Envelope{V: "v2", Type: TypeHello}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "message_send"}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.env.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(TypeAttendeeChanged, "id-1", "ev-1", ts, AttendeeChangedPayload{
		Kind:     KindCheckedIn,
		Attendee: Attendee{TicketID: "t-1", Name: "Sara", Attended: true, AttendedAt: &ts},
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var p AttendeeChangedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Kind != KindCheckedIn || p.Attendee.TicketID != "t-1" || p.Attendee.AttendedAt == nil {
		t.Fatalf("unexpected payload: %+v", p)
	}
}
