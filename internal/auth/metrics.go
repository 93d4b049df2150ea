// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for auth operation metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeConflict           = "conflict"
	OutcomeInvalidSession     = "invalid_session"
	OutcomeReuseDetected      = "reuse_detected"
	OutcomeThrottled          = "throttled"
	OutcomeError              = "error"
)

// Operations is the counter for auth service operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mealmind_auth_operations_total",
		Help: "Total number of auth operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// SessionsRevoked counts refresh sessions revoked, by reason.
var SessionsRevoked = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mealmind_auth_sessions_revoked_total",
		Help: "Total number of refresh sessions revoked",
	},
	[]string{"reason"},
)

// SessionsSwept counts expired refresh sessions deleted by the sweeper.
var SessionsSwept = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "mealmind_auth_sessions_swept_total",
		Help: "Total number of expired refresh sessions deleted",
	},
)

// LoginLockouts counts emails locked out after repeated login failures.
var LoginLockouts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "mealmind_auth_login_lockouts_total",
		Help: "Total number of login lockouts after repeated failures",
	},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(SessionsRevoked)
	reg.MustRegister(SessionsSwept)
	reg.MustRegister(LoginLockouts)
}

func recordOperation(operation, outcome string) {
	Operations.WithLabelValues(operation, outcome).Inc()
}

func recordRevoked(reason string, n int64) {
	if n > 0 {
		SessionsRevoked.WithLabelValues(reason).Add(float64(n))
	}
}
