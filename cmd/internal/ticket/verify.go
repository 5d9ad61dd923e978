package ticket

import (
	"context"
	"fmt"
)

// PINVerifier compares a plaintext PIN with an encoded hash in constant time.
type PINVerifier interface {
	Verify(encodedHash, pin string) (bool, error)
}

// VerifyPIN checks pin against the event's stored hash.
// Unknown events return ErrNotFound; store failures keep their ErrUnavailable wrapping.
// A corrupt stored hash is reported as a non-retryable error.
func VerifyPIN(ctx context.Context, st Store, v PINVerifier, eventID, pin string) (bool, error) {
	if st == nil || v == nil {
		return false, ErrInvalidInput
	}
	hash, err := st.PINHash(ctx, eventID)
	if err != nil {
		return false, err
	}
	ok, err := v.Verify(hash, pin)
	if err != nil {
		return false, fmt.Errorf("ticket: event %s pin hash: %w", eventID, err)
	}
	return ok, nil
}
