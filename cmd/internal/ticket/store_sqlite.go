package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY CHECK (length(id) = 26),
  name TEXT NOT NULL,
  starts_at TIMESTAMP NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL CHECK (category IN ('social', 'business')),
  theme_color TEXT NOT NULL DEFAULT '',
  pin_hash TEXT NOT NULL,
  allow_multiple_entry INTEGER NOT NULL DEFAULT 0,
  guest_count INTEGER NOT NULL DEFAULT 0 CHECK (guest_count >= 0),
  created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS attendees (
  id TEXT PRIMARY KEY CHECK (length(id) = 26),
  event_id TEXT NOT NULL REFERENCES events(id),
  name TEXT NOT NULL,
  phone TEXT NOT NULL,
  email TEXT NULL,
  category TEXT NOT NULL DEFAULT 'general' CHECK (category IN ('general', 'vip', 'family')),
  rsvp TEXT NOT NULL DEFAULT 'invited' CHECK (rsvp IN ('invited', 'confirmed', 'declined')),
  regret_reason TEXT NULL,
  attended INTEGER NOT NULL DEFAULT 0,
  attended_at TIMESTAMP NULL,
  created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_attendees_event_id ON attendees (event_id, id);

CREATE TABLE IF NOT EXISTS scanner_sessions (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES events(id),
  token_hash TEXT NOT NULL CHECK (length(token_hash) = 64),
  device TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL,
  expires_at TIMESTAMP NULL,
  revoked_at TIMESTAMP NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_scanner_sessions_token_hash ON scanner_sessions (token_hash);
`

// SQLiteStore persists everything in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrapSQLite("ping", err)
	}
	if err := EnsureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// EnsureSQLiteSchema creates the tables if they do not exist.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return ErrInvalidInput
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return wrapSQLite("ensure schema", err)
	}
	return nil
}

// DB exposes the handle for readiness checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Lookup(ctx context.Context, ticketID string) (Attendee, error) {
	a, err := scanSQLiteAttendee(s.db.QueryRowContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = ?`,
		ticketID,
	))
	if err != nil {
		return Attendee{}, wrapSQLite("lookup", err)
	}
	return a, nil
}

func (s *SQLiteStore) MarkAttended(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attendees SET attended = 1, attended_at = ? WHERE id = ? AND attended = 0`,
		now.UTC(),
		ticketID,
	)
	if err != nil {
		return false, wrapSQLite("mark attended", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapSQLite("mark attended", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`,
		eventID,
	))
	if err != nil {
		return Event{}, wrapSQLite("get event", err)
	}
	return ev, nil
}

func (s *SQLiteStore) PINHash(ctx context.Context, eventID string) (string, error) {
	var h string
	if err := s.db.QueryRowContext(ctx, `SELECT pin_hash FROM events WHERE id = ?`, eventID).Scan(&h); err != nil {
		return "", wrapSQLite("pin hash", err)
	}
	return h, nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, in NewEvent) (Event, error) {
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (
		     id, name, starts_at, location, category, theme_color, pin_hash, allow_multiple_entry, guest_count, created_at
		   ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		in.ID,
		in.Name,
		in.StartsAt.UTC(),
		in.Location,
		string(in.Category),
		in.ThemeColor,
		in.PINHash,
		in.AllowMultipleEntry,
		in.CreatedAt.UTC(),
	)
	if err != nil {
		return Event{}, wrapSQLite("create event", err)
	}
	return Event{
		ID:                 in.ID,
		Name:               in.Name,
		StartsAt:           in.StartsAt,
		Location:           in.Location,
		Category:           in.Category,
		ThemeColor:         in.ThemeColor,
		AllowMultipleEntry: in.AllowMultipleEntry,
		CreatedAt:          in.CreatedAt,
	}, nil
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, eventID string, in EventUpdate) (Event, error) {
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	if err := s.execOne(ctx, "update event",
		`UPDATE events SET name = ?, starts_at = ?, location = ?, category = ?, theme_color = ? WHERE id = ?`,
		in.Name, in.StartsAt.UTC(), in.Location, string(in.Category), in.ThemeColor, eventID,
	); err != nil {
		return Event{}, err
	}
	return s.GetEvent(ctx, eventID)
}

func (s *SQLiteStore) SetPINHash(ctx context.Context, eventID, pinHash string) error {
	if strings.TrimSpace(pinHash) == "" {
		return ErrInvalidInput
	}
	return s.execOne(ctx, "set pin hash", `UPDATE events SET pin_hash = ? WHERE id = ?`, pinHash, eventID)
}

func (s *SQLiteStore) SetAllowMultipleEntry(ctx context.Context, eventID string, allow bool) error {
	return s.execOne(ctx, "set entry policy", `UPDATE events SET allow_multiple_entry = ? WHERE id = ?`, allow, eventID)
}

func (s *SQLiteStore) CreateAttendee(ctx context.Context, in NewAttendee) (Attendee, error) {
	if err := in.validate(); err != nil {
		return Attendee{}, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE events SET guest_count = guest_count + 1 WHERE id = ?`, in.EventID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attendees (id, event_id, name, phone, email, category, rsvp, attended, created_at)
			   VALUES (?, ?, ?, ?, ?, ?, 'invited', 0, ?)`,
			in.ID,
			in.EventID,
			in.Name,
			in.Phone,
			in.Email,
			string(in.Category),
			in.CreatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return Attendee{}, wrapSQLite("create attendee", err)
	}
	return Attendee{
		ID:        in.ID,
		EventID:   in.EventID,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		Category:  in.Category,
		RSVP:      RSVPInvited,
		CreatedAt: in.CreatedAt,
	}, nil
}

func (s *SQLiteStore) CreateAttendees(ctx context.Context, eventID string, in []NewAttendee) ([]Attendee, error) {
	if err := validateBatch(eventID, in); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE events SET guest_count = guest_count + ? WHERE id = ?`, len(in), eventID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO attendees (id, event_id, name, phone, email, category, rsvp, attended, created_at)
			   VALUES (?, ?, ?, ?, ?, ?, 'invited', 0, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, row := range in {
			if _, err := stmt.ExecContext(ctx,
				row.ID, row.EventID, row.Name, row.Phone, row.Email, string(row.Category), row.CreatedAt.UTC(),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapSQLite("create attendees", err)
	}

	out := make([]Attendee, 0, len(in))
	for _, row := range in {
		out = append(out, row.attendee())
	}
	return out, nil
}

func (s *SQLiteStore) UpdateRSVP(ctx context.Context, ticketID string, in RSVPUpdate) (Attendee, error) {
	in, err := in.normalized()
	if err != nil {
		return Attendee{}, err
	}
	if err := s.execOne(ctx, "update rsvp",
		`UPDATE attendees SET rsvp = ?, regret_reason = ? WHERE id = ?`,
		string(in.Status), in.RegretReason, ticketID,
	); err != nil {
		return Attendee{}, err
	}
	return s.Lookup(ctx, ticketID)
}

func (s *SQLiteStore) DeleteAttendee(ctx context.Context, ticketID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var eventID string
		if err := tx.QueryRowContext(ctx, `SELECT event_id FROM attendees WHERE id = ?`, ticketID).Scan(&eventID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendees WHERE id = ?`, ticketID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE events SET guest_count = MAX(guest_count - 1, 0) WHERE id = ?`,
			eventID,
		)
		return err
	})
	if err != nil {
		return wrapSQLite("delete attendee", err)
	}
	return nil
}

func (s *SQLiteStore) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE event_id = ? ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, wrapSQLite("list attendees", err)
	}
	defer rows.Close()

	out := make([]Attendee, 0)
	for rows.Next() {
		a, err := scanSQLiteAttendee(rows)
		if err != nil {
			return nil, wrapSQLite("list attendees", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLite("list attendees", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateScannerSession(ctx context.Context, in NewSession) (ScannerSession, error) {
	if err := in.validate(); err != nil {
		return ScannerSession{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scanner_sessions (id, event_id, token_hash, device, created_at, expires_at)
		   VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID,
		in.EventID,
		in.TokenHash,
		in.Device,
		in.CreatedAt.UTC(),
		nullTime(in.ExpiresAt),
	)
	if err != nil {
		return ScannerSession{}, wrapSQLite("create scanner session", err)
	}
	return ScannerSession{
		ID:        in.ID,
		EventID:   in.EventID,
		TokenHash: in.TokenHash,
		Device:    in.Device,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}, nil
}

func (s *SQLiteStore) GetScannerSession(ctx context.Context, tokenHash string) (ScannerSession, error) {
	var (
		out       ScannerSession
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM scanner_sessions WHERE token_hash = ?`,
		tokenHash,
	).Scan(&out.ID, &out.EventID, &out.TokenHash, &out.Device, &out.CreatedAt, &expiresAt, &revokedAt)
	if err != nil {
		return ScannerSession{}, wrapSQLite("get scanner session", err)
	}
	out.ExpiresAt = timePtr(expiresAt)
	out.RevokedAt = timePtr(revokedAt)
	return out, nil
}

func (s *SQLiteStore) RevokeScannerSession(ctx context.Context, tokenHash string, now time.Time) error {
	return s.execOne(ctx, "revoke scanner session",
		`UPDATE scanner_sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE token_hash = ?`,
		now.UTC(), tokenHash,
	)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapSQLite(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQLite(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLite("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrapSQLite("commit", tx.Commit())
}

func scanSQLiteAttendee(row rowScanner) (Attendee, error) {
	var (
		a          Attendee
		category   string
		rsvp       string
		email      sql.NullString
		regret     sql.NullString
		attendedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.EventID,
		&a.Name,
		&a.Phone,
		&email,
		&category,
		&rsvp,
		&regret,
		&a.Attended,
		&attendedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return Attendee{}, err
	}
	a.Category = GuestCategory(category)
	a.RSVP = RSVPStatus(rsvp)
	if email.Valid {
		a.Email = &email.String
	}
	if regret.Valid {
		a.RegretReason = &regret.String
	}
	a.AttendedAt = timePtr(attendedAt)
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func wrapSQLite(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, ErrUnavailable):
		return err
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return ErrConflict
		case sqlite3.ErrConstraintForeignKey:
			return ErrNotFound
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return ErrInvalidInput
		}
	}
	return fmt.Errorf("ticket: %s: %w: %w", op, ErrUnavailable, err)
}
