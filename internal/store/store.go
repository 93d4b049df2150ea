// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package store opens the auth database and manages its schema.
package store

import (
	"strings"

	"github.com/samber/oops"
)

// Dialect names a supported database engine.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(name)))
	if d == "postgresql" || d == "pgx" {
		d = DialectPostgres
	}
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// Validate reports whether d is supported.
func (d Dialect) Validate() error {
	switch d {
	case DialectPostgres, DialectSQLite:
		return nil
	default:
		return oops.Code("STORE_UNKNOWN_DIALECT").
			With("dialect", string(d)).
			Errorf("unsupported database driver %q", string(d))
	}
}
