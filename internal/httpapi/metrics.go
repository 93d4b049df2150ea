// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Requests counts API requests by route and status code.
// Use RegisterMetrics to register this with a Prometheus registry.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mealmind_http_requests_total",
		Help: "Total number of API requests by route and status",
	},
	[]string{"route", "status"},
)

// RequestDuration observes API request latency by route.
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mealmind_http_request_duration_seconds",
		Help:    "API request latency by route",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route"},
)

// RegisterMetrics registers HTTP metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
	reg.MustRegister(RequestDuration)
}
