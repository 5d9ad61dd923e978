package app

import (
	"context"
	"time"

	"guestgate/cmd/internal/ticket"
)

// backend owns the ticket store and the resources behind it.
type backend struct {
	kind    string
	store   *ticket.Guard
	durable bool

	ping  func(ctx context.Context) error
	close func()
}

// newBackend decides between PostgreSQL, SQLite and the in-memory dev store,
// then wraps the choice in the store circuit breaker.
func newBackend(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	b := &backend{
		ping:  func(context.Context) error { return nil },
		close: func() {},
	}

	var next ticket.Store
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.DBAutoMigrate {
			if err := ticket.EnsurePostgresSchema(ctx, pool, cfg.DBSchema); err != nil {
				pool.Close()
				return nil, err
			}
		}
		pg, err := ticket.NewPostgresStore(pool, ticket.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		// Ownership model: the app owns the pool; PostgresStore.Close is a no-op.
		next = pg
		b.kind, b.durable = "postgres", true
		b.ping = func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) }
		b.close = pool.Close
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	case cfg.SQLitePath != "":
		lite, err := ticket.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		next = lite
		b.kind, b.durable = "sqlite", true
		b.ping = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return lite.DB().PingContext(ctx)
		}
		b.close = func() { _ = lite.Close() }
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)

	default:
		next = ticket.NewMemoryStore()
		b.kind = "memory"
		log.Info("db.disabled.inmemory_store")
	}

	gcfg := ticket.DefaultGuardConfig()
	if cfg.BreakerFailures > 0 {
		gcfg.FailureThreshold = uint32(cfg.BreakerFailures) // #nosec G115 -- EnvInt only yields positive values.
	}
	gcfg.Timeout = cfg.BreakerTimeout

	g, err := ticket.NewGuard(next, gcfg, log)
	if err != nil {
		b.close()
		return nil, err
	}
	b.store = g
	return b, nil
}
