package scanner

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"guestgate/cmd/security/token"
)

// Config controls scanner session issuance.
type Config struct {
	// SessionTTL is zero by default: sessions live until logout.
	SessionTTL time.Duration
	TokenBytes int
	// MaxDeviceLabel bounds the free-form device name stored with a session.
	MaxDeviceLabel int
}

// DefaultConfig returns the defaults used when no env is set.
func DefaultConfig() Config {
	return Config{
		SessionTTL:     0,
		TokenBytes:     token.DefaultBytes,
		MaxDeviceLabel: 128,
	}
}

// LoadConfigFromEnv reads:
// - GG_SCANNER_SESSION_TTL (Go duration, 0 disables expiry)
// - GG_SCANNER_TOKEN_BYTES (16..64)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("GG_SCANNER_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("GG_SCANNER_SESSION_TTL: invalid duration %q", v)
		}
		cfg.SessionTTL = d
	}

	if v := strings.TrimSpace(os.Getenv("GG_SCANNER_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, fmt.Errorf("GG_SCANNER_TOKEN_BYTES: out of range [16..64]")
		}
		cfg.TokenBytes = n
	}

	return cfg, nil
}
