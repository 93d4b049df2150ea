// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/auth/sqlite"
	"github.com/mealmind/mealmind/internal/store"
)

// newTestDB opens a migrated database file private to the test.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator, err := store.NewSQLiteMigrator(db)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())
	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "testhash", time.Now())
	require.NoError(t, err)
	require.NoError(t, sqlite.NewUserRepository(db).Create(context.Background(), user))
	return user
}

func createSession(t *testing.T, sessions *sqlite.SessionStore, userID, lineage ulid.ULID, now time.Time, ttl time.Duration) (*auth.RefreshSession, string) {
	t.Helper()
	token, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	session, err := auth.NewRefreshSession(userID, lineage, hash, now, ttl)
	require.NoError(t, err)
	require.NoError(t, sessions.Create(context.Background(), session))
	return session, token
}
