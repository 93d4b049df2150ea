// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package store

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/samber/oops"
	// Register the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// sqlitePragmas apply to every connection. Writers serialize through
// BEGIN IMMEDIATE and wait up to five seconds for the lock.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

// SQLiteDSN turns a file path (or a file: URI) into a modernc.org/sqlite DSN
// with the pragmas and locking mode the session store relies on. An empty
// path or ":memory:" opens a private in-memory database.
func SQLiteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" || path == ":memory:" {
		path = "file::memory:"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	base, rawQuery, _ := strings.Cut(path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	for _, p := range sqlitePragmas {
		if base == "file::memory:" && strings.HasPrefix(p, "journal_mode") {
			continue
		}
		query.Add("_pragma", p)
	}
	query.Set("_txlock", "immediate")
	return base + "?" + query.Encode()
}

// OpenSQLite opens the database at path. The pool is limited to a single
// connection so that an in-memory database is shared and writes never
// interleave.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open sqlite").Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping sqlite").
			With("path", path).
			Wrap(err)
	}
	return db, nil
}
