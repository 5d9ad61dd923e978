package pin

import (
	"strings"
	"unicode/utf8"
)

// Validate checks the PIN policy. It does not mutate input.
func (c Config) Validate(pin string) error {
	n := utf8.RuneCountInString(pin)

	if n < c.Policy.MinLength {
		return ErrPINTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPINTooLong
	}
	if !allDigits(pin) {
		return ErrPINNotNumeric
	}

	if c.Policy.RejectVeryWeak && looksVeryWeak(pin) {
		return ErrWeakPIN
	}
	return nil
}

// Normalize trims surrounding whitespace that keypads and paste buffers add.
func Normalize(pin string) string {
	return strings.TrimSpace(pin)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// looksVeryWeak flags repeated digits and straight ascending/descending runs.
func looksVeryWeak(pin string) bool {
	if len(pin) < 2 {
		return true
	}

	same, up, down := true, true, true
	for i := 1; i < len(pin); i++ {
		d := int(pin[i]) - int(pin[i-1])
		if d != 0 {
			same = false
		}
		if d != 1 {
			up = false
		}
		if d != -1 {
			down = false
		}
	}
	return same || up || down
}
