package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls API limits and organizer access.
type Config struct {
	MaxBodyBytes int64
	// TrustProxy keys rate limits on X-Forwarded-For / X-Real-IP instead of RemoteAddr.
	TrustProxy bool
	// AdminToken enables the organizer routes. Empty disables them.
	AdminToken string

	AuthRateMax    int
	AuthRateWindow time.Duration
	RetryAfter     time.Duration
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:   envInt64("GG_API_MAX_BODY_BYTES", 64<<10),
		TrustProxy:     envBool("GG_API_TRUST_PROXY", false),
		AdminToken:     strings.TrimSpace(os.Getenv("GG_ADMIN_TOKEN")),
		AuthRateMax:    envInt("GG_API_AUTH_RATE_MAX", 10),
		AuthRateWindow: envDuration("GG_API_AUTH_RATE_WINDOW", time.Minute),
		RetryAfter:     envDuration("GG_API_RETRY_AFTER", 2*time.Second),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
