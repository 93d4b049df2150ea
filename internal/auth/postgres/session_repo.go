// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
)

const sessionColumns = `id, user_id, lineage_id, token_hash, expires_at, created_at, revoked, revoked_at, replaced_by`

// SessionStore implements auth.SessionStore using PostgreSQL.
type SessionStore struct {
	pool poolIface
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool poolIface) *SessionStore {
	return &SessionStore{pool: pool}
}

// Create stores a new refresh session.
func (s *SessionStore) Create(ctx context.Context, session *auth.RefreshSession) error {
	if err := insertSession(ctx, s.pool, session); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert refresh_session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash, in any state.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Revoke marks a session revoked. Revoking an already revoked session keeps
// its original revoked_at and succeeds.
func (s *SessionStore) Revoke(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, id.String(), at.UTC())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke refresh_session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Rotate inserts next and marks oldID as replaced by it in one transaction.
// The old row must still be active at now; otherwise nothing is written and
// auth.ErrSessionConflict is returned. The transaction holds the lineage lock
// of next, so it never interleaves with RevokeLineage on the same lineage.
func (s *SessionStore) Rotate(ctx context.Context, oldID ulid.ULID, next *auth.RefreshSession, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("operation", "rotate refresh_session").Wrap(err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // rollback after commit is a no-op

	if err := lockLineage(ctx, tx, next.LineageID); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "lock lineage").
			With("old_id", oldID.String()).
			With("lineage_id", next.LineageID.String()).
			Wrap(err)
	}

	if err := insertSession(ctx, tx, next); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "insert rotated refresh_session").
			With("old_id", oldID.String()).
			Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET replaced_by = $2
		WHERE id = $1
		  AND revoked = FALSE
		  AND replaced_by IS NULL
		  AND expires_at > $3
	`, oldID.String(), next.ID.String(), now.UTC())
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "mark refresh_session replaced").
			With("old_id", oldID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_ROTATE_CONFLICT").
			With("old_id", oldID.String()).
			Wrap(auth.ErrSessionConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("operation", "rotate refresh_session").Wrap(err)
	}
	return nil
}

// RevokeLineage revokes every session in a lineage that is not yet revoked.
// It takes the lineage lock before the UPDATE, so the statement's snapshot
// includes any successor committed by a concurrent Rotate.
func (s *SessionStore) RevokeLineage(ctx context.Context, lineageID ulid.ULID, at time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, oops.Code("TX_BEGIN_FAILED").With("operation", "revoke lineage").Wrap(err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // rollback after commit is a no-op

	if err := lockLineage(ctx, tx, lineageID); err != nil {
		return 0, oops.Code("SESSION_REVOKE_LINEAGE_FAILED").
			With("operation", "lock lineage").
			With("lineage_id", lineageID.String()).
			Wrap(err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE lineage_id = $1 AND revoked = FALSE
	`, lineageID.String(), at.UTC())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_LINEAGE_FAILED").
			With("operation", "revoke lineage").
			With("lineage_id", lineageID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, oops.Code("TX_COMMIT_FAILED").With("operation", "revoke lineage").Wrap(err)
	}
	return result.RowsAffected(), nil
}

// RevokeAllForUser revokes every session owned by a user that is not yet revoked.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE
	`, userID.String(), at.UTC())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_USER_FAILED").
			With("operation", "revoke user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions that expired before the cutoff.
func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_sessions WHERE expires_at < $1
	`, before.UTC())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// lockLineage takes a transaction-scoped advisory lock on a lineage. It is
// released at commit or rollback.
func lockLineage(ctx context.Context, tx execer, lineageID ulid.ULID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lineageID.String())
	return err //nolint:wrapcheck // callers add the operation context
}

func insertSession(ctx context.Context, db execer, session *auth.RefreshSession) error {
	var replacedBy *string
	if session.ReplacedBy != nil {
		s := session.ReplacedBy.String()
		replacedBy = &s
	}
	var revokedAt *time.Time
	if session.RevokedAt != nil {
		t := session.RevokedAt.UTC()
		revokedAt = &t
	}

	_, err := db.Exec(ctx, `
		INSERT INTO refresh_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.LineageID.String(),
		session.TokenHash,
		session.ExpiresAt.UTC(),
		session.CreatedAt.UTC(),
		session.Revoked,
		revokedAt,
		replacedBy,
	)
	return err //nolint:wrapcheck // callers add the operation context
}

func scanSession(row pgx.Row) (*auth.RefreshSession, error) {
	var (
		session                     auth.RefreshSession
		idStr, userIDStr, lineageID string
		revokedAt                   *time.Time
		replacedBy                  *string
	)
	if err := row.Scan(
		&idStr,
		&userIDStr,
		&lineageID,
		&session.TokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.Revoked,
		&revokedAt,
		&replacedBy,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish pgx.ErrNoRows
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
	if replacedBy != nil {
		next, err := parseID("refresh_sessions.replaced_by", *replacedBy)
		if err != nil {
			return nil, err
		}
		session.ReplacedBy = &next
	}
	if revokedAt != nil {
		t := revokedAt.UTC()
		session.RevokedAt = &t
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	return &session, nil
}
