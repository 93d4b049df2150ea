// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired refresh sessions once",
		Long: `Delete refresh sessions that expired more than auth.sweep_retention ago,
and login failure records idle for longer than auth.lockout_duration.
The serve command does this periodically; sweep runs a single pass, for use
from cron when the server runs without its sweeper.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			sweeper, err := newSweeper(cfg, be, logger)
			if err != nil {
				return err
			}
			n, err := sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d expired session(s)\n", n)
			return nil
		},
	}
}
