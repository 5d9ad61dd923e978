package pin

import "errors"

// Public, stable errors for callers.
var (
	ErrPINTooShort   = errors.New("pin too short")
	ErrPINTooLong    = errors.New("pin too long")
	ErrPINNotNumeric = errors.New("pin must contain digits only")
	ErrWeakPIN       = errors.New("weak pin")
	ErrInvalidHash   = errors.New("invalid pin hash")
)
