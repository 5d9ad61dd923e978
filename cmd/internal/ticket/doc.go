// Package ticket is the storage boundary for events, attendee tickets and scanner sessions.
//
// Nothing else in the service talks to a database. Three implementations share one
// contract:
//   - MemoryStore for development and tests.
//   - PostgresStore (pgx) for production.
//   - SQLiteStore (database/sql + go-sqlite3) for single-box venues.
//
// The attendance transition is a single conditional write (attended=false -> true);
// MarkAttended reports true only for the call that performed it.
//
// Driver failures are wrapped in ErrUnavailable so callers can treat them as retryable.
package ticket
