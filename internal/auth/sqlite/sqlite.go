// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package sqlite implements the auth repositories on SQLite through
// modernc.org/sqlite.
//
// The handle passed to the constructors should come from store.OpenSQLite,
// which pins the pool to one connection and opens write transactions with
// BEGIN IMMEDIATE. Timestamps are stored as UTC unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dbIface is the subset of *sql.DB used by the repositories.
type dbIface interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseID(column, raw string) (ulid.ULID, error) {
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("ROW_INVALID_ID").
			With("column", column).
			With("value", raw).
			Wrap(err)
	}
	return id, nil
}
