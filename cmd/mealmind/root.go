// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mealmind/mealmind/internal/config"
	"github.com/mealmind/mealmind/internal/logging"
)

const serviceName = "mealmind"

// NewRootCmd creates the root command for the MealMind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mealmind",
		Short: "MealMind authentication service",
		Long: `MealMind authentication service: account registration, password login,
short-lived access tokens and rotating refresh sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from --config, the environment
// and the command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err //nolint:wrapcheck // flag lookup on a registered flag
	}
	return config.Load(path, cmd.Flags())
}

// newLogger builds the process logger from cfg and installs it as the
// slog default. Output goes to w, or stderr when w is nil.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  w,
	}), nil
}
