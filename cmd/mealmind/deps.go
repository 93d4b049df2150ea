// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package main

import (
	"context"
	"io"

	"github.com/mealmind/mealmind/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// TracingSetup installs trace export.
	// Default: observability.SetupTracing
	TracingSetup func(ctx context.Context, endpoint, serviceName, version string) (observability.ShutdownFunc, error)

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the API address once every server is listening.
	OnReady func(apiAddr string)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
