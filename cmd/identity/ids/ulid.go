// Package ids provides the identifier primitives shared by events, tickets and scanner sessions.
package ids

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Len is the canonical string length of a ULID.
const Len = ulid.EncodedSize

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable, which keeps attendee lists in creation order.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Normalize parses s strictly and returns its canonical upper-case form.
// ok is false for anything that is not a well-formed ULID.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != Len {
		return "", false
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// Valid reports whether s is a well-formed ULID.
func Valid(s string) bool {
	_, ok := Normalize(s)
	return ok
}
