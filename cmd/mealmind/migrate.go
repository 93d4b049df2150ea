// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mealmind/mealmind/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect schema migrations for the configured
database (PostgreSQL or SQLite).`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator, _ []string) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("Schema is up to date")
				return nil
			}
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Printf("Applied %d migration(s)\n", len(pending))
			return nil
		}),
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all auth data)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all data; pass --yes to confirm")
			}
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative N rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return oops.Code("INVALID_STEPS").With("steps", args[0]).Errorf("steps must be a non-zero integer")
			}
			if err := m.Steps(n); err != nil {
				return err
			}
			cmd.Printf("Migrated %d step(s)\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(printStatus),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version without running any migration. Use it
to clear a dirty state after repairing the schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Schema version forced to %d\n", v)
			return nil
		}),
	})

	return cmd
}

type migratorFunc func(cmd *cobra.Command, m *store.Migrator, args []string) error

// withMigrator opens the configured database and a migrator for fn.
func withMigrator(fn migratorFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		be, err := openBackend(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		m, err := be.Migrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer closeMigrator(m, logger)

		return fn(cmd, m, args)
	}
}

// migrateUp applies pending migrations on an open backend.
func migrateUp(be *backend, databaseURL string, logger *slog.Logger) error {
	m, err := be.Migrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		return err
	}
	v, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema ready", "dialect", string(m.Dialect()), "version", v)
	return nil
}

func closeMigrator(m *store.Migrator, logger *slog.Logger) {
	if err := m.Close(); err != nil {
		logger.Warn("error closing migrator", "error", err)
	}
}

func printStatus(cmd *cobra.Command, m *store.Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "DIRTY"
	}
	cmd.Printf("Dialect: %s\n", m.Dialect())
	cmd.Printf("Version: %d (%s)\n", version, state)

	for _, v := range applied {
		cmd.Printf("  [x] %s\n", migrationLabel(m.Dialect(), v))
	}
	for _, v := range pending {
		cmd.Printf("  [ ] %s\n", migrationLabel(m.Dialect(), v))
	}
	return nil
}

func migrationLabel(dialect store.Dialect, v uint) string {
	name, err := store.MigrationName(dialect, v)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", v)
	}
	return name
}
