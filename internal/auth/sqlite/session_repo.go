// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
)

// SessionStore implements auth.SessionStore using SQLite.
type SessionStore struct {
	db dbIface
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db dbIface) *SessionStore {
	return &SessionStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create stores a new refresh session.
func (s *SessionStore) Create(ctx context.Context, session *auth.RefreshSession) error {
	if err := insertSession(ctx, s.db, session); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert refresh_session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash, in any state.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, lineage_id, token_hash, expires_at, created_at, revoked, revoked_at, replaced_by
		FROM refresh_sessions
		WHERE token_hash = ?
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Revoke marks a session revoked, keeping the first revoked_at on repeats.
func (s *SessionStore) Revoke(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = 1, revoked_at = COALESCE(revoked_at, ?)
		WHERE id = ?
	`, toMillis(at), id.String())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke refresh_session").
			With("id", id.String()).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Rotate inserts next and marks oldID replaced by it in one BEGIN IMMEDIATE
// transaction. If the old row is no longer active at now nothing is written
// and auth.ErrSessionConflict is returned.
func (s *SessionStore) Rotate(ctx context.Context, oldID ulid.ULID, next *auth.RefreshSession, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("operation", "rotate refresh_session").Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := insertSession(ctx, tx, next); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "insert rotated refresh_session").
			With("old_id", oldID.String()).
			Wrap(err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET replaced_by = ?
		WHERE id = ?
		  AND revoked = 0
		  AND replaced_by IS NULL
		  AND expires_at > ?
	`, next.ID.String(), oldID.String(), toMillis(now))
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "mark refresh_session replaced").
			With("old_id", oldID.String()).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_ROTATE_CONFLICT").
			With("old_id", oldID.String()).
			Wrap(auth.ErrSessionConflict)
	}

	if err := tx.Commit(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("operation", "rotate refresh_session").Wrap(err)
	}
	return nil
}

// RevokeLineage revokes every session in a lineage that is not yet revoked.
func (s *SessionStore) RevokeLineage(ctx context.Context, lineageID ulid.ULID, at time.Time) (int64, error) {
	n, err := s.bulk(ctx, `
		UPDATE refresh_sessions SET revoked = 1, revoked_at = ?
		WHERE lineage_id = ? AND revoked = 0
	`, toMillis(at), lineageID.String())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_LINEAGE_FAILED").
			With("operation", "revoke lineage").
			With("lineage_id", lineageID.String()).
			Wrap(err)
	}
	return n, nil
}

// RevokeAllForUser revokes every session owned by a user that is not yet revoked.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	n, err := s.bulk(ctx, `
		UPDATE refresh_sessions SET revoked = 1, revoked_at = ?
		WHERE user_id = ? AND revoked = 0
	`, toMillis(at), userID.String())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_USER_FAILED").
			With("operation", "revoke user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// DeleteExpired removes sessions that expired before the cutoff.
func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.bulk(ctx, `DELETE FROM refresh_sessions WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return n, nil
}

func (s *SessionStore) bulk(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // callers add the operation context
	}
	return result.RowsAffected() //nolint:wrapcheck // callers add the operation context
}

func insertSession(ctx context.Context, db execer, session *auth.RefreshSession) error {
	var replacedBy sql.NullString
	if session.ReplacedBy != nil {
		replacedBy = sql.NullString{String: session.ReplacedBy.String(), Valid: true}
	}
	var revokedAt sql.NullInt64
	if session.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: toMillis(*session.RevokedAt), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_sessions
			(id, user_id, lineage_id, token_hash, expires_at, created_at, revoked, revoked_at, replaced_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.LineageID.String(),
		session.TokenHash,
		toMillis(session.ExpiresAt),
		toMillis(session.CreatedAt),
		session.Revoked,
		revokedAt,
		replacedBy,
	)
	return err //nolint:wrapcheck // callers add the operation context
}

func scanSession(row *sql.Row) (*auth.RefreshSession, error) {
	var (
		session                     auth.RefreshSession
		idStr, userIDStr, lineageID string
		expiresAt, createdAt        int64
		revokedAt                   sql.NullInt64
		replacedBy                  sql.NullString
	)
	if err := row.Scan(
		&idStr,
		&userIDStr,
		&lineageID,
		&session.TokenHash,
		&expiresAt,
		&createdAt,
		&session.Revoked,
		&revokedAt,
		&replacedBy,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish sql.ErrNoRows
	}

	var err error
	if session.ID, err = parseID("refresh_sessions.id", idStr); err != nil {
		return nil, err
	}
	if session.UserID, err = parseID("refresh_sessions.user_id", userIDStr); err != nil {
		return nil, err
	}
	if session.LineageID, err = parseID("refresh_sessions.lineage_id", lineageID); err != nil {
		return nil, err
	}
	if replacedBy.Valid {
		next, err := parseID("refresh_sessions.replaced_by", replacedBy.String)
		if err != nil {
			return nil, err
		}
		session.ReplacedBy = &next
	}
	if revokedAt.Valid {
		t := fromMillis(revokedAt.Int64)
		session.RevokedAt = &t
	}
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	return &session, nil
}
