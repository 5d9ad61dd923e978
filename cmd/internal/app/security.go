package app

import (
	"errors"

	"guestgate/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup.
// Silently falling back to plain SHA-256 under a policy that requires HMAC is not allowed.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Key length is measured in bytes because the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: GG_REQUIRE_TOKEN_HMAC=true but GG_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: GG_REQUIRE_TOKEN_HMAC=true but GG_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: GG_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return nil
}
