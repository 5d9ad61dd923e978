package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/ticket"
	"guestgate/cmd/security/pin"

	"golang.org/x/crypto/bcrypt"
)

func cheapPins() pin.Config {
	cfg := pin.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

type fixture struct {
	store *ticket.MemoryStore
	svc   *Service
	event ticket.Event
	now   time.Time
}

func newFixture(t *testing.T, storedPIN string, cfg Config) *fixture {
	t.Helper()

	pins := cheapPins()
	st := ticket.NewMemoryStore()
	f := &fixture{store: st, now: time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)}

	svc, err := NewService(st, pins, cfg, WithClock(func() time.Time { return f.now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc

	h, err := pins.Hash(storedPIN)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	f.event = mustEvent(t, st, h)
	return f
}

func mustEvent(t *testing.T, st ticket.Store, pinHash string) ticket.Event {
	t.Helper()
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	ev, err := st.CreateEvent(context.Background(), ticket.NewEvent{
		ID:        id,
		Name:      "Gala",
		StartsAt:  time.Now().UTC().Add(time.Hour),
		Category:  ticket.EventBusiness,
		PINHash:   pinHash,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func TestAuthorize_PINGate(t *testing.T) {
	f := newFixture(t, "1234", DefaultConfig())
	ctx := context.Background()
	unknown, _ := ids.NewULID(time.Now().UTC())

	cases := []struct {
		name    string
		eventID string
		pin     string
		want    bool
	}{
		{name: "match", eventID: f.event.ID, pin: "1234", want: true},
		{name: "match with keypad whitespace", eventID: f.event.ID, pin: " 1234\n", want: true},
		{name: "wrong pin", eventID: f.event.ID, pin: "9999", want: false},
		{name: "empty pin", eventID: f.event.ID, pin: "", want: false},
		{name: "letters", eventID: f.event.ID, pin: "abcd", want: false},
		{name: "huge pin", eventID: f.event.ID, pin: string(make([]byte, 4096)), want: false},
		{name: "unknown event", eventID: unknown, pin: "1234", want: false},
		{name: "malformed event", eventID: "not-an-id", pin: "1234", want: false},
		{name: "empty event", eventID: "", pin: "1234", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.svc.Authorize(ctx, tc.eventID, tc.pin)
			if err != nil {
				t.Fatalf("Authorize returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Authorize=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestAuthorize_WrongPINRejected(t *testing.T) {
	f := newFixture(t, "1234", DefaultConfig())

	ok, err := f.svc.Authorize(context.Background(), f.event.ID, "9999")
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

type downStore struct {
	*ticket.MemoryStore
}

func (d downStore) PINHash(context.Context, string) (string, error) {
	return "", fmt.Errorf("ticket: pin hash: %w: i/o timeout", ticket.ErrUnavailable)
}

func TestAuthorize_StoreFailureIsRetryable(t *testing.T) {
	st := downStore{MemoryStore: ticket.NewMemoryStore()}
	svc, err := NewService(st, cheapPins(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	id, _ := ids.NewULID(time.Now().UTC())

	ok, err := svc.Authorize(context.Background(), id, "1234")
	if ok || !errors.Is(err, ticket.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got ok=%v err=%v", ok, err)
	}

	_, err = svc.Authenticate(context.Background(), id, "1234", "door")
	if errors.Is(err, ErrAuthFailure) || !errors.Is(err, ticket.ErrUnavailable) {
		t.Fatalf("store failure must not look like a wrong pin: %v", err)
	}
}

func TestAuthenticate_IssueValidateLogout(t *testing.T) {
	f := newFixture(t, "4821", DefaultConfig())
	ctx := context.Background()

	issued, err := f.svc.Authenticate(ctx, f.event.ID, "4821", "  north gate  ")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if issued.Token == "" || issued.Session.EventID != f.event.ID || issued.Session.Device != "north gate" {
		t.Fatalf("unexpected issue: %+v", issued)
	}
	if issued.Session.ExpiresAt != nil {
		t.Fatalf("sessions must not expire by default")
	}

	// Far in the future the session is still valid.
	f.now = f.now.Add(30 * 24 * time.Hour)
	sess, err := f.svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sess.ID != issued.Session.ID {
		t.Fatalf("Validate returned another session: %+v", sess)
	}

	if err := f.svc.Logout(ctx, issued.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestAuthenticate_GenericFailure(t *testing.T) {
	f := newFixture(t, "4821", DefaultConfig())
	unknown, _ := ids.NewULID(time.Now().UTC())

	_, errWrong := f.svc.Authenticate(context.Background(), f.event.ID, "0000", "")
	_, errMissing := f.svc.Authenticate(context.Background(), unknown, "4821", "")
	if !errors.Is(errWrong, ErrAuthFailure) || !errors.Is(errMissing, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for both, got %v / %v", errWrong, errMissing)
	}
	if errWrong.Error() != errMissing.Error() {
		t.Fatalf("wrong pin and unknown event must be indistinguishable")
	}
}

func TestAuthenticate_TTL(t *testing.T) {
	f := newFixture(t, "4821", Config{SessionTTL: time.Hour})
	ctx := context.Background()

	issued, err := f.svc.Authenticate(ctx, f.event.ID, "4821", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	f.now = f.now.Add(2 * time.Hour)
	if _, err := f.svc.Validate(ctx, issued.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	f := newFixture(t, "4821", DefaultConfig())
	for _, tok := range []string{"", "   ", "not-a-token"} {
		if _, err := f.svc.Validate(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Validate(%q): expected ErrUnauthorized, got %v", tok, err)
		}
	}
}

func TestChangePIN(t *testing.T) {
	f := newFixture(t, "4821", DefaultConfig())
	ctx := context.Background()

	issued, err := f.svc.Authenticate(ctx, f.event.ID, "4821", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := f.svc.ChangePIN(ctx, issued.Session, f.event.ID, "12"); !errors.Is(err, pin.ErrPINTooShort) {
		t.Fatalf("expected ErrPINTooShort, got %v", err)
	}

	other := mustEvent(t, f.store, "$argon2id$placeholder")
	if err := f.svc.ChangePIN(ctx, issued.Session, other.ID, "7777"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := f.svc.ChangePIN(ctx, issued.Session, f.event.ID, "5930"); err != nil {
		t.Fatalf("ChangePIN: %v", err)
	}

	if ok, _ := f.svc.Authorize(ctx, f.event.ID, "4821"); ok {
		t.Fatalf("old pin must stop working")
	}
	if ok, _ := f.svc.Authorize(ctx, f.event.ID, "5930"); !ok {
		t.Fatalf("new pin must work")
	}
	// Existing sessions survive a PIN change.
	if _, err := f.svc.Validate(ctx, issued.Token); err != nil {
		t.Fatalf("existing session must stay valid: %v", err)
	}
}

func TestAuthenticate_UpgradesLegacyBcrypt(t *testing.T) {
	pins := cheapPins()
	st := ticket.NewMemoryStore()
	svc, err := NewService(st, pins, DefaultConfig())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	legacy, err := bcrypt.GenerateFromPassword([]byte("2468"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	ev := mustEvent(t, st, string(legacy))

	if _, err := svc.Authenticate(context.Background(), ev.ID, "2468", ""); err != nil {
		t.Fatalf("Authenticate with legacy hash: %v", err)
	}

	h, err := st.PINHash(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("PINHash: %v", err)
	}
	if pins.NeedsRehash(h) {
		t.Fatalf("expected hash upgraded to argon2id, got %q", h)
	}
	if ok, _ := svc.Authorize(context.Background(), ev.ID, "2468"); !ok {
		t.Fatalf("upgraded hash must still accept the pin")
	}
}
