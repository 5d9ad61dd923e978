package ticket

import (
	"context"
	"errors"
	"testing"
)

type fakeVerifier struct {
	want string
	err  error
}

func (f fakeVerifier) Verify(encodedHash, pin string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return encodedHash == testPINHash && pin == f.want, nil
}

func TestVerifyPIN(t *testing.T) {
	st := NewMemoryStore()
	ev := mustCreateEvent(t, st, false)
	ctx := context.Background()

	ok, err := VerifyPIN(ctx, st, fakeVerifier{want: "4821"}, ev.ID, "4821")
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}

	ok, err = VerifyPIN(ctx, st, fakeVerifier{want: "4821"}, ev.ID, "0000")
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}

	_, err = VerifyPIN(ctx, st, fakeVerifier{want: "4821"}, mustID(t), "4821")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	bad := errors.New("bad hash")
	_, err = VerifyPIN(ctx, st, fakeVerifier{err: bad}, ev.ID, "4821")
	if !errors.Is(err, bad) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected wrapped verifier error, got %v", err)
	}
}
