// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/auth/postgres"
	"github.com/mealmind/mealmind/internal/auth/sqlite"
	"github.com/mealmind/mealmind/internal/config"
	"github.com/mealmind/mealmind/internal/store"
)

// backend is an open database with the auth repositories bound to it.
type backend struct {
	dialect  store.Dialect
	users    auth.UserRepository
	sessions auth.SessionStore
	attempts auth.LoginAttemptStore

	pool *pgxpool.Pool
	db   *sql.DB
}

// openBackend connects to the configured database.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*backend, error) {
	dialect, err := store.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case store.DialectPostgres:
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.Connect(ctx, cfg.URL, opts)
		if err != nil {
			return nil, err
		}
		return &backend{
			dialect:  dialect,
			users:    postgres.NewUserRepository(pool),
			sessions: postgres.NewSessionStore(pool),
			attempts: postgres.NewLoginAttemptStore(pool),
			pool:     pool,
		}, nil
	default:
		db, err := store.OpenSQLite(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &backend{
			dialect:  dialect,
			users:    sqlite.NewUserRepository(db),
			sessions: sqlite.NewSessionStore(db),
			attempts: sqlite.NewLoginAttemptStore(db),
			db:       db,
		}, nil
	}
}

// Ping reports whether the database answers.
func (b *backend) Ping(ctx context.Context) error {
	var err error
	if b.pool != nil {
		err = b.pool.Ping(ctx)
	} else {
		err = b.db.PingContext(ctx)
	}
	if err != nil {
		return oops.Code("DB_PING_FAILED").With("dialect", string(b.dialect)).Wrap(err)
	}
	return nil
}

// Migrator returns a migrator for the backend's database. The caller closes
// it; closing it leaves the backend open.
func (b *backend) Migrator(databaseURL string) (*store.Migrator, error) {
	if b.db != nil {
		return store.NewSQLiteMigrator(b.db)
	}
	return store.NewMigrator(b.dialect, databaseURL)
}

// Close releases the database.
func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			slog.Debug("error closing sqlite database", "error", err)
		}
	}
}
