package ticket

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		t.Helper()
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "guestgate.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ev := mustCreateEvent(t, st, true)
	a := mustCreateAttendee(t, st, ev.ID)
	at := time.Now().UTC().Truncate(time.Second)
	if ok, err := st.MarkAttended(ctx, a.ID, at); err != nil || !ok {
		t.Fatalf("MarkAttended: ok=%v err=%v", ok, err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.Lookup(ctx, a.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Attended || got.AttendedAt == nil || !got.AttendedAt.Equal(at) {
		t.Fatalf("attendance lost across reopen: %+v", got)
	}
	gotEv, err := st.GetEvent(ctx, ev.ID)
	if err != nil || !gotEv.AllowMultipleEntry {
		t.Fatalf("event lost across reopen: %+v err=%v", gotEv, err)
	}
}

func TestOpenSQLite_RejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), "  "); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteStore_TxFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ev := mustCreateEvent(t, st, false)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = st.CreateAttendee(ctx, newGuest(t, ev.ID, "0791234567"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "ticket: begin:") {
		t.Fatalf("expected begin to be named in %q", err)
	}
	if n := strings.Count(err.Error(), ErrUnavailable.Error()); n != 1 {
		t.Fatalf("expected a single unavailable marker, got %d in %q", n, err)
	}

	_, err = st.CreateAttendees(ctx, ev.ID, []NewAttendee{newGuest(t, ev.ID, "0791234568")})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from batch, got %v", err)
	}
}
