package scanner

import "errors"

var (
	// ErrAuthFailure is the single answer for unknown events and wrong PINs.
	ErrAuthFailure = errors.New("invalid event or pin")
	// ErrUnauthorized means the presented token is missing, unknown, revoked or expired.
	ErrUnauthorized = errors.New("scanner session required")
	// ErrForbidden means the session belongs to another event.
	ErrForbidden = errors.New("session not valid for this event")
)
