package ticket

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	// ErrUnavailable marks infrastructure failures. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)
