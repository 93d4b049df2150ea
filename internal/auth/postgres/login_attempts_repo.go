// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
)

const attemptColumns = `email, failures, last_failure_at, locked_until`

// LoginAttemptStore implements auth.LoginAttemptStore using PostgreSQL.
type LoginAttemptStore struct {
	pool poolIface
}

// NewLoginAttemptStore creates a new LoginAttemptStore.
func NewLoginAttemptStore(pool poolIface) *LoginAttemptStore {
	return &LoginAttemptStore{pool: pool}
}

// Get retrieves the failure record for email.
func (s *LoginAttemptStore) Get(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+`
		FROM login_attempts
		WHERE email = $1
	`, email)

	attempts, err := scanAttempts(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("LOGIN_ATTEMPTS_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPTS_GET_FAILED").
			With("operation", "get login attempts").
			Wrap(err)
	}
	return attempts, nil
}

// RecordFailure counts one failure in a single upsert, so concurrent
// failures for the same email are never lost.
func (s *LoginAttemptStore) RecordFailure(ctx context.Context, email string, at time.Time, cfg auth.ThrottleConfig) (*auth.LoginAttempts, error) {
	at = at.UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO login_attempts (email, failures, last_failure_at, locked_until)
		VALUES ($1, 1, $2::timestamptz, CASE WHEN 1 >= $3::int THEN $4::timestamptz END)
		ON CONFLICT (email) DO UPDATE SET
			failures = CASE
				WHEN login_attempts.last_failure_at < $5::timestamptz THEN 1
				ELSE login_attempts.failures + 1
			END,
			last_failure_at = EXCLUDED.last_failure_at,
			locked_until = CASE
				WHEN login_attempts.last_failure_at >= $5::timestamptz
				 AND login_attempts.failures + 1 >= $3::int THEN $4::timestamptz
			END
		RETURNING `+attemptColumns,
		email, at, cfg.LockoutThreshold, at.Add(cfg.LockoutDuration), at.Add(-cfg.LockoutDuration))

	attempts, err := scanAttempts(row)
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPTS_RECORD_FAILED").
			With("operation", "record login failure").
			Wrap(err)
	}
	return attempts, nil
}

// Reset forgets the failures of email.
func (s *LoginAttemptStore) Reset(ctx context.Context, email string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM login_attempts WHERE email = $1`, email); err != nil {
		return oops.Code("LOGIN_ATTEMPTS_RESET_FAILED").
			With("operation", "reset login attempts").
			Wrap(err)
	}
	return nil
}

// DeleteStale removes records idle since before the cutoff.
func (s *LoginAttemptStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM login_attempts
		WHERE last_failure_at < $1
		  AND (locked_until IS NULL OR locked_until < $1)
	`, before.UTC())
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPTS_DELETE_STALE_FAILED").
			With("operation", "delete stale login attempts").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanAttempts(row pgx.Row) (*auth.LoginAttempts, error) {
	var attempts auth.LoginAttempts
	if err := row.Scan(&attempts.Email, &attempts.Failures, &attempts.LastFailureAt, &attempts.LockedUntil); err != nil {
		return nil, err //nolint:wrapcheck // callers add the operation context
	}
	attempts.LastFailureAt = attempts.LastFailureAt.UTC()
	if attempts.LockedUntil != nil {
		locked := attempts.LockedUntil.UTC()
		attempts.LockedUntil = &locked
	}
	return &attempts, nil
}
