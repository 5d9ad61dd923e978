package ticket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"guestgate/cmd/identity/ids"
)

// runStoreContract exercises behavior every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("lookup unknown ticket", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Lookup(context.Background(), mustID(t))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create event and attendee", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)

		email := "guest@example.com"
		a, err := st.CreateAttendee(ctx, NewAttendee{
			ID:        mustID(t),
			EventID:   ev.ID,
			Name:      "Layla",
			Phone:     "0791234567",
			Email:     &email,
			Category:  GuestVIP,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("CreateAttendee: %v", err)
		}
		if a.RSVP != RSVPInvited || a.Attended {
			t.Fatalf("unexpected initial state: %+v", a)
		}

		got, err := st.Lookup(ctx, a.ID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if got.EventID != ev.ID || got.Name != "Layla" || got.Category != GuestVIP {
			t.Fatalf("unexpected attendee: %+v", got)
		}
		if got.Email == nil || *got.Email != email {
			t.Fatalf("expected email round trip, got %v", got.Email)
		}

		gotEv, err := st.GetEvent(ctx, ev.ID)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if gotEv.GuestCount != 1 {
			t.Fatalf("expected guest_count=1, got %d", gotEv.GuestCount)
		}

		hash, err := st.PINHash(ctx, ev.ID)
		if err != nil || hash != testPINHash {
			t.Fatalf("PINHash: %q %v", hash, err)
		}
	})

	t.Run("attendee for unknown event", func(t *testing.T) {
		st := newStore(t)
		_, err := st.CreateAttendee(context.Background(), NewAttendee{
			ID:        mustID(t),
			EventID:   mustID(t),
			Name:      "Nobody",
			Phone:     "0790000000",
			Category:  GuestGeneral,
			CreatedAt: time.Now().UTC(),
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		st := newStore(t)
		ev := mustCreateEvent(t, st, false)
		_, err := st.CreateAttendee(context.Background(), NewAttendee{
			ID:        mustID(t),
			EventID:   ev.ID,
			Name:      "Bad Phone",
			Phone:     "+962-79",
			Category:  GuestGeneral,
			CreatedAt: time.Now().UTC(),
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("mark attended once", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)
		a := mustCreateAttendee(t, st, ev.ID)

		first := time.Now().UTC().Truncate(time.Second)
		ok, err := st.MarkAttended(ctx, a.ID, first)
		if err != nil || !ok {
			t.Fatalf("first MarkAttended: ok=%v err=%v", ok, err)
		}
		ok, err = st.MarkAttended(ctx, a.ID, first.Add(time.Minute))
		if err != nil || ok {
			t.Fatalf("second MarkAttended: ok=%v err=%v", ok, err)
		}

		got, err := st.Lookup(ctx, a.ID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if !got.Attended || got.AttendedAt == nil || !got.AttendedAt.Equal(first) {
			t.Fatalf("expected attended_at=%v, got %+v", first, got.AttendedAt)
		}
	})

	t.Run("concurrent mark attended has one winner", func(t *testing.T) {
		st := newStore(t)
		ev := mustCreateEvent(t, st, false)
		a := mustCreateAttendee(t, st, ev.ID)

		const n = 16
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := st.MarkAttended(context.Background(), a.ID, time.Now().UTC())
				if err != nil {
					t.Errorf("MarkAttended: %v", err)
					return
				}
				if ok {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := winners.Load(); got != 1 {
			t.Fatalf("expected exactly one winner, got %d", got)
		}
	})

	t.Run("rsvp with regret reason", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)
		a := mustCreateAttendee(t, st, ev.ID)

		reason := "  travelling  "
		got, err := st.UpdateRSVP(ctx, a.ID, RSVPUpdate{Status: RSVPDeclined, RegretReason: &reason})
		if err != nil {
			t.Fatalf("UpdateRSVP: %v", err)
		}
		if got.RSVP != RSVPDeclined || got.RegretReason == nil || *got.RegretReason != "travelling" {
			t.Fatalf("unexpected decline: %+v", got)
		}

		got, err = st.UpdateRSVP(ctx, a.ID, RSVPUpdate{Status: RSVPConfirmed, RegretReason: &reason})
		if err != nil {
			t.Fatalf("UpdateRSVP: %v", err)
		}
		if got.RSVP != RSVPConfirmed || got.RegretReason != nil {
			t.Fatalf("expected reason cleared on confirm: %+v", got)
		}

		if _, err := st.UpdateRSVP(ctx, a.ID, RSVPUpdate{Status: "maybe"}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := st.UpdateRSVP(ctx, mustID(t), RSVPUpdate{Status: RSVPConfirmed}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete maintains guest count", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)
		a := mustCreateAttendee(t, st, ev.ID)
		b := mustCreateAttendee(t, st, ev.ID)

		if err := st.DeleteAttendee(ctx, a.ID); err != nil {
			t.Fatalf("DeleteAttendee: %v", err)
		}
		if err := st.DeleteAttendee(ctx, a.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}

		list, err := st.ListAttendees(ctx, ev.ID)
		if err != nil {
			t.Fatalf("ListAttendees: %v", err)
		}
		if len(list) != 1 || list[0].ID != b.ID {
			t.Fatalf("unexpected list: %+v", list)
		}
		gotEv, err := st.GetEvent(ctx, ev.ID)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if gotEv.GuestCount != 1 {
			t.Fatalf("expected guest_count=1, got %d", gotEv.GuestCount)
		}
	})

	t.Run("event policy and pin", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)

		if err := st.SetAllowMultipleEntry(ctx, ev.ID, true); err != nil {
			t.Fatalf("SetAllowMultipleEntry: %v", err)
		}
		if err := st.SetPINHash(ctx, ev.ID, "$argon2id$new"); err != nil {
			t.Fatalf("SetPINHash: %v", err)
		}
		got, err := st.GetEvent(ctx, ev.ID)
		if err != nil || !got.AllowMultipleEntry {
			t.Fatalf("expected multi-entry, got %+v err=%v", got, err)
		}
		h, err := st.PINHash(ctx, ev.ID)
		if err != nil || h != "$argon2id$new" {
			t.Fatalf("PINHash after set: %q %v", h, err)
		}
		if err := st.SetAllowMultipleEntry(ctx, mustID(t), true); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update event details", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, true)
		mustCreateAttendee(t, st, ev.ID)

		startsAt := ev.StartsAt.Add(48 * time.Hour)
		got, err := st.UpdateEvent(ctx, ev.ID, EventUpdate{
			Name:       "Engagement",
			StartsAt:   startsAt,
			Location:   "Irbid",
			Category:   EventBusiness,
			ThemeColor: "#0f766e",
		})
		if err != nil {
			t.Fatalf("UpdateEvent: %v", err)
		}
		if got.Name != "Engagement" || got.Location != "Irbid" || got.Category != EventBusiness || got.ThemeColor != "#0f766e" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if !got.StartsAt.Equal(startsAt) {
			t.Fatalf("starts_at = %v, want %v", got.StartsAt, startsAt)
		}
		if !got.AllowMultipleEntry || got.GuestCount != 1 {
			t.Fatalf("update touched policy or count: %+v", got)
		}
		if h, err := st.PINHash(ctx, ev.ID); err != nil || h != testPINHash {
			t.Fatalf("PINHash after update: %q %v", h, err)
		}

		reread, err := st.GetEvent(ctx, ev.ID)
		if err != nil || reread.Name != "Engagement" {
			t.Fatalf("GetEvent after update: %+v err=%v", reread, err)
		}

		if _, err := st.UpdateEvent(ctx, ev.ID, EventUpdate{StartsAt: startsAt, Category: EventSocial}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
		}
		if _, err := st.UpdateEvent(ctx, mustID(t), EventUpdate{Name: "x", StartsAt: startsAt, Category: EventSocial}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("batch create is all or nothing", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)
		existing := mustCreateAttendee(t, st, ev.ID)

		rows := []NewAttendee{newGuest(t, ev.ID, "0791111111"), newGuest(t, ev.ID, "0792222222"), newGuest(t, ev.ID, "0793333333")}
		got, err := st.CreateAttendees(ctx, ev.ID, rows)
		if err != nil {
			t.Fatalf("CreateAttendees: %v", err)
		}
		if len(got) != len(rows) || got[1].ID != rows[1].ID || got[1].RSVP != RSVPInvited {
			t.Fatalf("unexpected batch result: %+v", got)
		}
		evNow, err := st.GetEvent(ctx, ev.ID)
		if err != nil || evNow.GuestCount != 4 {
			t.Fatalf("expected guest_count=4, got %+v err=%v", evNow, err)
		}

		clash := []NewAttendee{newGuest(t, ev.ID, "0794444444"), newGuest(t, ev.ID, "0795555555")}
		clash[1].ID = existing.ID
		if _, err := st.CreateAttendees(ctx, ev.ID, clash); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := st.Lookup(ctx, clash[0].ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected rolled back row to be absent, got %v", err)
		}
		evNow, _ = st.GetEvent(ctx, ev.ID)
		if evNow.GuestCount != 4 {
			t.Fatalf("expected guest_count unchanged at 4, got %d", evNow.GuestCount)
		}

		if _, err := st.CreateAttendees(ctx, mustID(t), []NewAttendee{newGuest(t, ev.ID, "0796666666")}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for mismatched event, got %v", err)
		}
		other := mustID(t)
		if _, err := st.CreateAttendees(ctx, other, []NewAttendee{newGuest(t, other, "0796666666")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := st.CreateAttendees(ctx, ev.ID, nil); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for empty batch, got %v", err)
		}
	})

	t.Run("scanner sessions", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		ev := mustCreateEvent(t, st, false)

		now := time.Now().UTC().Truncate(time.Second)
		hash := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
		ss, err := st.CreateScannerSession(ctx, NewSession{
			ID:        mustID(t),
			EventID:   ev.ID,
			TokenHash: hash,
			Device:    "door-1",
			CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreateScannerSession: %v", err)
		}

		got, err := st.GetScannerSession(ctx, hash)
		if err != nil {
			t.Fatalf("GetScannerSession: %v", err)
		}
		if got.ID != ss.ID || got.EventID != ev.ID || !got.Active(now) {
			t.Fatalf("unexpected session: %+v", got)
		}

		if err := st.RevokeScannerSession(ctx, hash, now.Add(time.Minute)); err != nil {
			t.Fatalf("RevokeScannerSession: %v", err)
		}
		got, err = st.GetScannerSession(ctx, hash)
		if err != nil {
			t.Fatalf("GetScannerSession after revoke: %v", err)
		}
		if got.Active(now.Add(2 * time.Minute)) {
			t.Fatalf("expected revoked session to be inactive")
		}

		if _, err := st.GetScannerSession(ctx, "ff"+hash[2:]); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

const testPINHash = "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

func mustID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	return id
}

func mustCreateEvent(t *testing.T, st Store, allowMultiple bool) Event {
	t.Helper()
	ev, err := st.CreateEvent(context.Background(), NewEvent{
		ID:                 mustID(t),
		Name:               "Wedding",
		StartsAt:           time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		Location:           "Amman",
		Category:           EventSocial,
		ThemeColor:         "#4f46e5",
		PINHash:            testPINHash,
		AllowMultipleEntry: allowMultiple,
		CreatedAt:          time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func newGuest(t *testing.T, eventID, phone string) NewAttendee {
	t.Helper()
	return NewAttendee{
		ID:        mustID(t),
		EventID:   eventID,
		Name:      "Guest " + phone[len(phone)-4:],
		Phone:     phone,
		Category:  GuestFamily,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func mustCreateAttendee(t *testing.T, st Store, eventID string) Attendee {
	t.Helper()
	a, err := st.CreateAttendee(context.Background(), NewAttendee{
		ID:        mustID(t),
		EventID:   eventID,
		Name:      "Guest",
		Phone:     "0791234567",
		Category:  GuestGeneral,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("CreateAttendee: %v", err)
	}
	return a
}
