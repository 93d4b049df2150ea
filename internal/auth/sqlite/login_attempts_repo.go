// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
)

// LoginAttemptStore implements auth.LoginAttemptStore using SQLite.
type LoginAttemptStore struct {
	db dbIface
}

// NewLoginAttemptStore creates a new LoginAttemptStore.
func NewLoginAttemptStore(db dbIface) *LoginAttemptStore {
	return &LoginAttemptStore{db: db}
}

// Get retrieves the failure record for email.
func (s *LoginAttemptStore) Get(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, failures, last_failure_at, locked_until
		FROM login_attempts
		WHERE email = ?
	`, email)

	attempts, err := scanAttempts(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("LOGIN_ATTEMPTS_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPTS_GET_FAILED").
			With("operation", "get login attempts").
			Wrap(err)
	}
	return attempts, nil
}

// RecordFailure counts one failure in a single upsert statement.
func (s *LoginAttemptStore) RecordFailure(ctx context.Context, email string, at time.Time, cfg auth.ThrottleConfig) (*auth.LoginAttempts, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO login_attempts (email, failures, last_failure_at, locked_until)
		VALUES (?1, 1, ?2, CASE WHEN 1 >= ?3 THEN ?4 END)
		ON CONFLICT (email) DO UPDATE SET
			failures = CASE
				WHEN login_attempts.last_failure_at < ?5 THEN 1
				ELSE login_attempts.failures + 1
			END,
			last_failure_at = excluded.last_failure_at,
			locked_until = CASE
				WHEN login_attempts.last_failure_at >= ?5
				 AND login_attempts.failures + 1 >= ?3 THEN ?4
			END
		RETURNING email, failures, last_failure_at, locked_until
	`,
		email,
		toMillis(at),
		cfg.LockoutThreshold,
		toMillis(at.Add(cfg.LockoutDuration)),
		toMillis(at.Add(-cfg.LockoutDuration)),
	)

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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE email = ?`, email); err != nil {
		return oops.Code("LOGIN_ATTEMPTS_RESET_FAILED").
			With("operation", "reset login attempts").
			Wrap(err)
	}
	return nil
}

// DeleteStale removes records idle since before the cutoff.
func (s *LoginAttemptStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	cutoff := toMillis(before)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE last_failure_at < ?1
		  AND (locked_until IS NULL OR locked_until < ?1)
	`, cutoff)
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPTS_DELETE_STALE_FAILED").
			With("operation", "delete stale login attempts").
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPTS_DELETE_STALE_FAILED").
			With("operation", "count deleted login attempts").
			Wrap(err)
	}
	return n, nil
}

func scanAttempts(row *sql.Row) (*auth.LoginAttempts, error) {
	var (
		attempts    auth.LoginAttempts
		lastFailure int64
		lockedUntil sql.NullInt64
	)
	if err := row.Scan(&attempts.Email, &attempts.Failures, &lastFailure, &lockedUntil); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish sql.ErrNoRows
	}
	attempts.LastFailureAt = fromMillis(lastFailure)
	if lockedUntil.Valid {
		t := fromMillis(lockedUntil.Int64)
		attempts.LockedUntil = &t
	}
	return &attempts, nil
}
