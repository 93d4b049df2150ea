// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/pkg/errutil"
)

var (
	sessionNow        = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	sessionRowColumns = []string{
		"id", "user_id", "lineage_id", "token_hash", "expires_at",
		"created_at", "revoked", "revoked_at", "replaced_by",
	}
)

func newTestSession(t *testing.T, lineage ulid.ULID) *auth.RefreshSession {
	t.Helper()
	_, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	session, err := auth.NewRefreshSession(ulid.Make(), lineage, hash, sessionNow, time.Hour)
	require.NoError(t, err)
	return session
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestSessionStore_GetByTokenHash(t *testing.T) {
	t.Run("scans rotated session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := newTestSession(t, ulid.ULID{})
		next := ulid.Make()
		mock.ExpectQuery(`FROM refresh_sessions\s+WHERE token_hash = \$1`).
			WithArgs(session.TokenHash).
			WillReturnRows(pgxmock.NewRows(sessionRowColumns).AddRow(
				session.ID.String(), session.UserID.String(), session.LineageID.String(),
				session.TokenHash, session.ExpiresAt, session.CreatedAt,
				false, nil, &[]string{next.String()}[0],
			))

		got, err := NewSessionStore(mock).GetByTokenHash(context.Background(), session.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.LineageID, got.LineageID)
		require.NotNil(t, got.ReplacedBy)
		assert.Equal(t, next, *got.ReplacedBy)
		assert.Nil(t, got.RevokedAt)
		assert.Equal(t, auth.SessionRotated, got.StateAt(sessionNow))
	})

	t.Run("unknown hash is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM refresh_sessions`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err = NewSessionStore(mock).GetByTokenHash(context.Background(), "missing")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})
}

func TestSessionStore_Rotate(t *testing.T) {
	old := newTestSession(t, ulid.ULID{})

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, next *auth.RefreshSession)
		wantCode  string
		wantIs    error
	}{
		{
			name: "commits when old session is active",
			setupMock: func(mock pgxmock.PgxPoolIface, next *auth.RefreshSession) {
				mock.ExpectBegin()
				mock.ExpectExec(`pg_advisory_xact_lock`).
					WithArgs(next.LineageID.String()).
					WillReturnResult(pgxmock.NewResult("SELECT", 1))
				mock.ExpectExec(`INSERT INTO refresh_sessions`).
					WithArgs(anyArgs(9)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`UPDATE refresh_sessions\s+SET replaced_by = \$2`).
					WithArgs(old.ID.String(), next.ID.String(), sessionNow).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "rolls back when old session is no longer active",
			setupMock: func(mock pgxmock.PgxPoolIface, next *auth.RefreshSession) {
				mock.ExpectBegin()
				mock.ExpectExec(`pg_advisory_xact_lock`).
					WithArgs(next.LineageID.String()).
					WillReturnResult(pgxmock.NewResult("SELECT", 1))
				mock.ExpectExec(`INSERT INTO refresh_sessions`).
					WithArgs(anyArgs(9)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`UPDATE refresh_sessions`).
					WithArgs(old.ID.String(), next.ID.String(), sessionNow).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectRollback()
			},
			wantCode: "SESSION_ROTATE_CONFLICT",
			wantIs:   auth.ErrSessionConflict,
		},
		{
			name: "rolls back when insert fails",
			setupMock: func(mock pgxmock.PgxPoolIface, next *auth.RefreshSession) {
				mock.ExpectBegin()
				mock.ExpectExec(`pg_advisory_xact_lock`).
					WithArgs(next.LineageID.String()).
					WillReturnResult(pgxmock.NewResult("SELECT", 1))
				mock.ExpectExec(`INSERT INTO refresh_sessions`).
					WithArgs(anyArgs(9)...).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantCode: "SESSION_ROTATE_FAILED",
		},
		{
			name: "rolls back when the lineage lock fails",
			setupMock: func(mock pgxmock.PgxPoolIface, next *auth.RefreshSession) {
				mock.ExpectBegin()
				mock.ExpectExec(`pg_advisory_xact_lock`).
					WithArgs(next.LineageID.String()).
					WillReturnError(errors.New("lock timeout"))
				mock.ExpectRollback()
			},
			wantCode: "SESSION_ROTATE_FAILED",
		},
		{
			name: "begin failure",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.RefreshSession) {
				mock.ExpectBegin().WillReturnError(errors.New("pool closed"))
			},
			wantCode: "TX_BEGIN_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			next := newTestSession(t, old.LineageID)
			tt.setupMock(mock, next)

			err = NewSessionStore(mock).Rotate(context.Background(), old.ID, next, sessionNow)

			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantIs != nil {
					assert.ErrorIs(t, err, tt.wantIs)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionStore_Revoke(t *testing.T) {
	id := ulid.Make()

	t.Run("revokes existing session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`SET revoked = TRUE, revoked_at = COALESCE\(revoked_at, \$2\)`).
			WithArgs(id.String(), sessionNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewSessionStore(mock).Revoke(context.Background(), id, sessionNow))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing session is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs(id.String(), sessionNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = NewSessionStore(mock).Revoke(context.Background(), id, sessionNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionStore_RevokeLineage(t *testing.T) {
	lineage := ulid.Make()

	t.Run("locks the lineage before revoking", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
			WithArgs(lineage.String()).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(`WHERE lineage_id = \$1 AND revoked = FALSE`).
			WithArgs(lineage.String(), sessionNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))
		mock.ExpectCommit()

		n, err := NewSessionStore(mock).RevokeLineage(context.Background(), lineage, sessionNow)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update failure rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs(lineage.String()).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs(lineage.String(), sessionNow).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		n, err := NewSessionStore(mock).RevokeLineage(context.Background(), lineage, sessionNow)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_REVOKE_LINEAGE_FAILED")
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure writes nothing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs(lineage.String()).
			WillReturnError(errors.New("canceling statement due to lock timeout"))
		mock.ExpectRollback()

		_, err = NewSessionStore(mock).RevokeLineage(context.Background(), lineage, sessionNow)
		errutil.AssertErrorCode(t, err, "SESSION_REVOKE_LINEAGE_FAILED")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionStore_BulkOperations(t *testing.T) {
	id := ulid.Make()

	tests := []struct {
		name  string
		query string
		args  []any
		run   func(s *SessionStore) (int64, error)
	}{
		{
			name:  "revoke all for user",
			query: `WHERE user_id = \$1 AND revoked = FALSE`,
			args:  []any{id.String(), sessionNow},
			run: func(s *SessionStore) (int64, error) {
				return s.RevokeAllForUser(context.Background(), id, sessionNow)
			},
		},
		{
			name:  "delete expired",
			query: `DELETE FROM refresh_sessions WHERE expires_at < \$1`,
			args:  []any{sessionNow},
			run: func(s *SessionStore) (int64, error) {
				return s.DeleteExpired(context.Background(), sessionNow)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(tt.query).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 3))

			n, err := tt.run(NewSessionStore(mock))
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)
		})

		t.Run(tt.name+" failure", func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(tt.query).
				WithArgs(tt.args...).
				WillReturnError(errors.New("connection reset"))

			n, err := tt.run(NewSessionStore(mock))
			require.Error(t, err)
			assert.Zero(t, n)
		})
	}
}
