package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the PostgreSQL schema used when none is configured.
const DefaultSchema = "guestgate"

// PostgresStore persists events, tickets and scanner sessions in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "guestgate").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool stays owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

const attendeeColumns = `id, event_id, name, phone, email, category, rsvp, regret_reason, attended, attended_at, created_at`

const eventColumns = `id, name, starts_at, location, category, theme_color, allow_multiple_entry, guest_count, created_at`

const sessionColumns = `id, event_id, token_hash, device, created_at, expires_at, revoked_at`

func (s *PostgresStore) Lookup(ctx context.Context, ticketID string) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	attendees := pgIdent(s.schema, "attendees")

	a, err := scanAttendee(s.pool.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM `+attendees+` WHERE id = $1`,
		ticketID,
	))
	if err != nil {
		return Attendee{}, wrapPG("lookup", err)
	}
	return a, nil
}

// MarkAttended is the only write path for attendance.
func (s *PostgresStore) MarkAttended(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	attendees := pgIdent(s.schema, "attendees")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+attendees+`
		    SET attended = true,
		        attended_at = $2
		  WHERE id = $1
		    AND attended = false`,
		ticketID,
		now,
	)
	if err != nil {
		return false, wrapPG("mark attended", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	events := pgIdent(s.schema, "events")

	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM `+events+` WHERE id = $1`,
		eventID,
	))
	if err != nil {
		return Event{}, wrapPG("get event", err)
	}
	return ev, nil
}

func (s *PostgresStore) PINHash(ctx context.Context, eventID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	events := pgIdent(s.schema, "events")

	var h string
	err := s.pool.QueryRow(ctx, `SELECT pin_hash FROM `+events+` WHERE id = $1`, eventID).Scan(&h)
	if err != nil {
		return "", wrapPG("pin hash", err)
	}
	return h, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, in NewEvent) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	events := pgIdent(s.schema, "events")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+events+` (
		     id, name, starts_at, location, category, theme_color, pin_hash, allow_multiple_entry, guest_count, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		in.ID,
		in.Name,
		in.StartsAt,
		in.Location,
		string(in.Category),
		in.ThemeColor,
		in.PINHash,
		in.AllowMultipleEntry,
		in.CreatedAt,
	)
	if err != nil {
		return Event{}, wrapPG("create event", err)
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

func (s *PostgresStore) UpdateEvent(ctx context.Context, eventID string, in EventUpdate) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	events := pgIdent(s.schema, "events")

	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE `+events+`
		    SET name = $2,
		        starts_at = $3,
		        location = $4,
		        category = $5,
		        theme_color = $6
		  WHERE id = $1
		RETURNING `+eventColumns,
		eventID,
		in.Name,
		in.StartsAt,
		in.Location,
		string(in.Category),
		in.ThemeColor,
	))
	if err != nil {
		return Event{}, wrapPG("update event", err)
	}
	return ev, nil
}

func (s *PostgresStore) SetPINHash(ctx context.Context, eventID, pinHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(pinHash) == "" {
		return ErrInvalidInput
	}
	events := pgIdent(s.schema, "events")

	tag, err := s.pool.Exec(ctx, `UPDATE `+events+` SET pin_hash = $2 WHERE id = $1`, eventID, pinHash)
	if err != nil {
		return wrapPG("set pin hash", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetAllowMultipleEntry(ctx context.Context, eventID string, allow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events := pgIdent(s.schema, "events")

	tag, err := s.pool.Exec(ctx, `UPDATE `+events+` SET allow_multiple_entry = $2 WHERE id = $1`, eventID, allow)
	if err != nil {
		return wrapPG("set entry policy", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateAttendee(ctx context.Context, in NewAttendee) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	if err := in.validate(); err != nil {
		return Attendee{}, err
	}
	events := pgIdent(s.schema, "events")
	attendees := pgIdent(s.schema, "attendees")

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE `+events+` SET guest_count = guest_count + 1 WHERE id = $1`, in.EventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+attendees+` (
			     id, event_id, name, phone, email, category, rsvp, attended, created_at
			   ) VALUES ($1, $2, $3, $4, $5, $6, 'invited', false, $7)`,
			in.ID,
			in.EventID,
			in.Name,
			in.Phone,
			in.Email,
			string(in.Category),
			in.CreatedAt,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attendee{}, ErrNotFound
		}
		return Attendee{}, wrapPG("create attendee", err)
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

// CreateAttendees queues every insert into one batch inside a single transaction.
func (s *PostgresStore) CreateAttendees(ctx context.Context, eventID string, in []NewAttendee) ([]Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBatch(eventID, in); err != nil {
		return nil, err
	}
	events := pgIdent(s.schema, "events")
	attendees := pgIdent(s.schema, "attendees")

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE `+events+` SET guest_count = guest_count + $2 WHERE id = $1`, eventID, len(in))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		batch := &pgx.Batch{}
		for _, row := range in {
			batch.Queue(
				`INSERT INTO `+attendees+` (
				     id, event_id, name, phone, email, category, rsvp, attended, created_at
				   ) VALUES ($1, $2, $3, $4, $5, $6, 'invited', false, $7)`,
				row.ID, row.EventID, row.Name, row.Phone, row.Email, string(row.Category), row.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, wrapPG("create attendees", err)
	}

	out := make([]Attendee, 0, len(in))
	for _, row := range in {
		out = append(out, row.attendee())
	}
	return out, nil
}

func (s *PostgresStore) UpdateRSVP(ctx context.Context, ticketID string, in RSVPUpdate) (Attendee, error) {
	if err := ctx.Err(); err != nil {
		return Attendee{}, err
	}
	in, err := in.normalized()
	if err != nil {
		return Attendee{}, err
	}
	attendees := pgIdent(s.schema, "attendees")

	a, err := scanAttendee(s.pool.QueryRow(ctx,
		`UPDATE `+attendees+`
		    SET rsvp = $2,
		        regret_reason = $3
		  WHERE id = $1
		RETURNING `+attendeeColumns,
		ticketID,
		string(in.Status),
		in.RegretReason,
	))
	if err != nil {
		return Attendee{}, wrapPG("update rsvp", err)
	}
	return a, nil
}

func (s *PostgresStore) DeleteAttendee(ctx context.Context, ticketID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events := pgIdent(s.schema, "events")
	attendees := pgIdent(s.schema, "attendees")

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var eventID string
		err := tx.QueryRow(ctx, `DELETE FROM `+attendees+` WHERE id = $1 RETURNING event_id`, ticketID).Scan(&eventID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE `+events+` SET guest_count = GREATEST(guest_count - 1, 0) WHERE id = $1`,
			eventID,
		)
		return err
	})
	if err != nil {
		return wrapPG("delete attendee", err)
	}
	return nil
}

func (s *PostgresStore) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	attendees := pgIdent(s.schema, "attendees")

	rows, err := s.pool.Query(ctx,
		`SELECT `+attendeeColumns+` FROM `+attendees+` WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, wrapPG("list attendees", err)
	}
	defer rows.Close()

	out := make([]Attendee, 0)
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, wrapPG("list attendees", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPG("list attendees", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateScannerSession(ctx context.Context, in NewSession) (ScannerSession, error) {
	if err := ctx.Err(); err != nil {
		return ScannerSession{}, err
	}
	if err := in.validate(); err != nil {
		return ScannerSession{}, err
	}
	sessions := pgIdent(s.schema, "scanner_sessions")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (id, event_id, token_hash, device, created_at, expires_at)
		   VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID,
		in.EventID,
		in.TokenHash,
		in.Device,
		in.CreatedAt,
		in.ExpiresAt,
	)
	if err != nil {
		return ScannerSession{}, wrapPG("create scanner session", err)
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

func (s *PostgresStore) GetScannerSession(ctx context.Context, tokenHash string) (ScannerSession, error) {
	if err := ctx.Err(); err != nil {
		return ScannerSession{}, err
	}
	sessions := pgIdent(s.schema, "scanner_sessions")

	var out ScannerSession
	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM `+sessions+` WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&out.ID,
		&out.EventID,
		&out.TokenHash,
		&out.Device,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.RevokedAt,
	)
	if err != nil {
		return ScannerSession{}, wrapPG("get scanner session", err)
	}
	return out, nil
}

func (s *PostgresStore) RevokeScannerSession(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessions := pgIdent(s.schema, "scanner_sessions")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET revoked_at = COALESCE(revoked_at, $2) WHERE token_hash = $1`,
		tokenHash,
		now,
	)
	if err != nil {
		return wrapPG("revoke scanner session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (Attendee, error) {
	var (
		a        Attendee
		category string
		rsvp     string
	)
	err := row.Scan(
		&a.ID,
		&a.EventID,
		&a.Name,
		&a.Phone,
		&a.Email,
		&category,
		&rsvp,
		&a.RegretReason,
		&a.Attended,
		&a.AttendedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return Attendee{}, err
	}
	a.Category = GuestCategory(category)
	a.RSVP = RSVPStatus(rsvp)
	return a, nil
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		ev       Event
		category string
	)
	err := row.Scan(
		&ev.ID,
		&ev.Name,
		&ev.StartsAt,
		&ev.Location,
		&category,
		&ev.ThemeColor,
		&ev.AllowMultipleEntry,
		&ev.GuestCount,
		&ev.CreatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	ev.Category = EventCategory(category)
	return ev, nil
}

// wrapPG maps driver errors onto the package sentinels.
func wrapPG(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrConflict
		case "23503": // foreign_key_violation
			return ErrNotFound
		case "23514", "22001": // check_violation, string_data_right_truncation
			return ErrInvalidInput
		}
	}
	return fmt.Errorf("ticket: %s: %w: %w", op, ErrUnavailable, err)
}
