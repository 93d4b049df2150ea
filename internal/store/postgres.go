// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// Attempts is the number of pings tried before giving up.
	Attempts uint64
	// Backoff is the first retry delay; it doubles on each attempt.
	Backoff time.Duration
	Logger  *slog.Logger
}

// DefaultConnectOptions waits roughly 30 seconds for PostgreSQL to accept
// connections.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{Attempts: 8, Backoff: 250 * time.Millisecond}
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// while the server is unreachable.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse dsn").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions().Backoff
	}

	attempt := 0
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"max_attempts", opts.Attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
