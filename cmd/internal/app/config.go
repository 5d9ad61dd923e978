package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Exactly one backend is used: PostgreSQL when DatabaseURL is set,
	// otherwise SQLite when SQLitePath is set, otherwise memory.
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBSchema      string
	DBAutoMigrate bool
	SQLitePath    string

	// If true:
	// - /readyz returns 503 unless a durable store is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, GG_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and scanner tokens are HMAC-hashed.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	BreakerFailures int
	BreakerTimeout  time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("GG_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("GG_LOG_LEVEL", "info"),
		LogFormat: EnvString("GG_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("GG_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GG_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GG_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GG_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GG_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("GG_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("GG_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("GG_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("GG_DB_SCHEMA", "guestgate"),
		DBAutoMigrate: EnvBool("GG_DB_AUTO_MIGRATE", true),
		SQLitePath:    EnvString("GG_SQLITE_PATH", ""),

		ReadinessRequireDB: EnvBool("GG_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("GG_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("GG_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("GG_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("GG_CORS_MAX_AGE_SECONDS", 600),

		BreakerFailures: EnvInt("GG_STORE_BREAKER_FAILURES", 5),
		BreakerTimeout:  EnvDuration("GG_STORE_BREAKER_TIMEOUT", 10*time.Second),
	}
}
