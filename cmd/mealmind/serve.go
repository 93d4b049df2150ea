// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/config"
	"github.com/mealmind/mealmind/internal/httpapi"
	"github.com/mealmind/mealmind/internal/observability"
	"github.com/mealmind/mealmind/internal/token"
	"github.com/mealmind/mealmind/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth API",
		Long: `Run the auth HTTP API, the metrics and health endpoints, and the
expired-session sweeper until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, migrateFirst, nil)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

// runServeWithDeps runs the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, migrateFirst bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return newObservabilityServer(addr, readinessChecker)
		}
	}
	if deps.TracingSetup == nil {
		deps.TracingSetup = observability.SetupTracing
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cfg, deps.LogWriter)
	if err != nil {
		return err
	}

	shutdownTracing, err := deps.TracingSetup(ctx, cfg.Tracing.Endpoint, serviceName, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	logger.Info("starting mealmind",
		"database_driver", cfg.Database.Driver,
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr)

	be, err := openBackend(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	if migrateFirst {
		if err := migrateUp(be, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	svc, err := newService(cfg, be, logger)
	if err != nil {
		return err
	}

	api, err := httpapi.New(svc, httpapi.Options{
		PathPrefix:     cfg.HTTP.PathPrefix,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	sweeper, err := newSweeper(cfg, be, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, be.Ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	apiServer := httpapi.NewServer(cfg.HTTP.Addr, api, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	sweeper.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("mealmind ready", "http_addr", apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "error stopping api server", err)
	}
	cancel()
	sweeper.Stop()
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return nil
}

func newService(cfg *config.Config, be *backend, logger *slog.Logger) (*auth.Service, error) {
	codec, err := token.New(token.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.AccessTTL,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewService(be.users, be.sessions, auth.NewArgon2idHasher(), codec,
		auth.WithLogger(logger),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithLoginThrottle(be.attempts, auth.ThrottleConfig{
			LockoutThreshold: cfg.Auth.LockoutThreshold,
			LockoutDuration:  cfg.Auth.LockoutDuration,
		}),
	)
}

// newSweeper creates the sweeper for expired sessions. When login throttling
// is on it also drops failure records older than the lockout window.
func newSweeper(cfg *config.Config, be *backend, logger *slog.Logger) (*auth.Sweeper, error) {
	var opts []auth.SweeperOption
	if cfg.Auth.LockoutThreshold > 0 {
		opts = append(opts, auth.SweepLoginAttempts(be.attempts, cfg.Auth.LockoutDuration))
	}
	return auth.NewSweeper(auth.SweepConfig{
		Interval:  cfg.Auth.SweepInterval,
		Retention: cfg.Auth.SweepRetention,
	}, be.sessions, logger, opts...)
}

// newObservabilityServer creates the metrics server with the auth and HTTP
// collectors registered.
func newObservabilityServer(addr string, readinessChecker observability.ReadinessChecker) *observability.Server {
	srv := observability.NewServer(addr, readinessChecker)
	registerMetrics(srv.Registry())
	return srv
}

func registerMetrics(reg prometheus.Registerer) {
	auth.RegisterMetrics(reg)
	httpapi.RegisterMetrics(reg)
}

func stopObservability(srv ObservabilityServer, logger *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
