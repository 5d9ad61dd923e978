package ticket

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsurePostgresSchema creates the schema and tables if they do not exist.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil || schema == "" {
		return ErrInvalidInput
	}

	events := pgIdent(schema, "events")
	attendees := pgIdent(schema, "attendees")
	sessions := pgIdent(schema, "scanner_sessions")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  starts_at TIMESTAMPTZ NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL,
  theme_color TEXT NOT NULL DEFAULT '',
  pin_hash TEXT NOT NULL,
  allow_multiple_entry BOOLEAN NOT NULL DEFAULT false,
  guest_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_events_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_events_category CHECK (category IN ('social', 'business')),
  CONSTRAINT chk_events_guest_count CHECK (guest_count >= 0)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES %s(id),
  name TEXT NOT NULL,
  phone TEXT NOT NULL,
  email TEXT NULL,
  category TEXT NOT NULL DEFAULT 'general',
  rsvp TEXT NOT NULL DEFAULT 'invited',
  regret_reason TEXT NULL,
  attended BOOLEAN NOT NULL DEFAULT false,
  attended_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_attendees_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_attendees_category CHECK (category IN ('general', 'vip', 'family')),
  CONSTRAINT chk_attendees_rsvp CHECK (rsvp IN ('invited', 'confirmed', 'declined')),
  CONSTRAINT chk_attendees_attended_at CHECK (attended = (attended_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS ix_attendees_event_id ON %s (event_id, id);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES %s(id),
  token_hash TEXT NOT NULL,
  device TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NULL,
  revoked_at TIMESTAMPTZ NULL,
  CONSTRAINT chk_scanner_sessions_token_hash_len CHECK (char_length(token_hash) = 64)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_scanner_sessions_token_hash ON %s (token_hash);
`,
		pgx.Identifier{schema}.Sanitize(),
		events,
		attendees, events,
		attendees,
		sessions, events,
		sessions,
	)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return wrapPG("ensure schema", err)
	}
	return nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
