// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// migrateIface abstracts golang-migrate so the Migrator can be tested
// without a database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator wraps golang-migrate for one dialect's embedded migrations.
type Migrator struct {
	m       migrateIface
	dialect Dialect

	// borrowed is set when the database handle belongs to the caller. Close
	// then releases only the migration source.
	borrowed source.Driver
}

// NewMigrator creates a Migrator for the given dialect and database URL.
//
// PostgreSQL URLs may use the postgres://, postgresql:// or pgx5:// scheme.
// SQLite URLs are file paths, optionally prefixed with sqlite://.
func NewMigrator(dialect Dialect, databaseURL string) (*Migrator, error) {
	src, err := dialect.source()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dialect.migrateURL(databaseURL))
	if err != nil {
		_ = src.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "initialize migrator").
			With("dialect", string(dialect)).
			Wrap(err)
	}
	return &Migrator{m: m, dialect: dialect}, nil
}

// NewSQLiteMigrator creates a Migrator over an open SQLite handle. Close does
// not close db.
func NewSQLiteMigrator(db *sql.DB) (*Migrator, error) {
	src, err := DialectSQLite.source()
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		_ = src.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "wrap sqlite handle").
			Wrap(err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = src.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "initialize migrator").
			With("dialect", string(DialectSQLite)).
			Wrap(err)
	}
	return &Migrator{m: m, dialect: DialectSQLite, borrowed: src}, nil
}

// Dialect reports which migration set this Migrator applies.
func (m *Migrator) Dialect() Dialect {
	return m.dialect
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back every migration. All auth data is dropped.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps applies n migrations. Positive n migrates up, negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the current migration version and dirty state.
// It returns version 0 when nothing has been applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations. It is meant
// for recovering from a dirty state after fixing the schema by hand.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases resources.
func (m *Migrator) Close() error {
	if m.borrowed != nil {
		if err := m.borrowed.Close(); err != nil {
			return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(err)
		}
		return nil
	}

	srcErr, dbErr := m.m.Close()
	if srcErr != nil && dbErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	}
	if srcErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	}
	if dbErr != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// PendingMigrations returns the versions Up would apply, in ascending order.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	all, err := m.dialect.versions()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}

	var pending []uint
	for _, v := range all {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// AppliedMigrations returns the applied versions in ascending order.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	if current == 0 {
		return nil, nil
	}
	all, err := m.dialect.versions()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}

	var applied []uint
	for _, v := range all {
		if v <= current {
			applied = append(applied, v)
		}
	}
	return applied, nil
}

// MigrationName returns the NNNNNN_name of a migration, or "" if the
// dialect has no migration with that version.
func MigrationName(dialect Dialect, version uint) (string, error) {
	entries, err := fs.ReadDir(migrationsFS, dialect.dir())
	if err != nil {
		return "", oops.Code("MIGRATION_READ_FAILED").
			With("operation", "read migrations dir").
			With("dialect", string(dialect)).
			Wrap(err)
	}

	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".up.sql") {
			return strings.TrimSuffix(name, ".up.sql"), nil
		}
	}
	return "", nil
}

func (d Dialect) dir() string {
	return path.Join("migrations", string(d))
}

func (d Dialect) source() (source.Driver, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, d.dir())
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").
			With("operation", "create migration source").
			With("dialect", string(d)).
			Wrap(err)
	}
	return src, nil
}

// migrateURL rewrites a connection string into the scheme golang-migrate
// registers for the dialect.
func (d Dialect) migrateURL(databaseURL string) string {
	switch d {
	case DialectPostgres:
		for _, scheme := range []string{"postgres://", "postgresql://"} {
			if rest, found := strings.CutPrefix(databaseURL, scheme); found {
				return "pgx5://" + rest
			}
		}
	case DialectSQLite:
		if !strings.HasPrefix(databaseURL, "sqlite://") {
			return "sqlite://" + strings.TrimPrefix(databaseURL, "file:")
		}
	}
	return databaseURL
}

// versions lists the embedded migration versions in ascending order.
// Files that do not follow NNNNNN_name.up.sql are skipped.
func (d Dialect) versions() ([]uint, error) {
	entries, err := fs.ReadDir(migrationsFS, d.dir())
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").
			With("operation", "read migrations dir").
			With("dialect", string(d)).
			Wrap(err)
	}

	seen := make(map[uint]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(name, "%06d", &version); err != nil {
			slog.Warn("migration file name doesn't match expected format, skipping",
				"filename", name,
				"dialect", string(d),
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		seen[version] = struct{}{}
	}

	versions := make([]uint, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}
