// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mealmind/mealmind/pkg/errutil"
)

var tracer = otel.Tracer("mealmind/httpapi")

type userIDKey struct{}

// UserID returns the authenticated user stored by the bearer middleware.
func UserID(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(userIDKey{}).(ulid.ULID)
	return id, ok
}

// instrument wraps a route handler with a span, a request timeout, metrics
// and an access log line.
func (a *API) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
			))
		defer span.End()

		if a.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}

		m := httpsnoop.CaptureMetrics(h, w, r.WithContext(ctx))

		status := strconv.Itoa(m.Code)
		Requests.WithLabelValues(route, status).Inc()
		RequestDuration.WithLabelValues(route).Observe(m.Duration.Seconds())
		span.SetAttributes(attribute.Int("http.response.status_code", m.Code))
		if m.Code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(m.Code))
		}

		a.logger.LogAttrs(ctx, levelFor(m.Code), "http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", m.Code),
			slog.Int64("bytes", m.Written),
			slog.Duration("duration", m.Duration))
	})
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// requireBearer resolves the Authorization header to a user ID. Requests
// without a valid access token get 401 with a WWW-Authenticate challenge.
func (a *API) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mealmind"`)
			writeErrorBody(w, http.StatusUnauthorized, CodeInvalidSession, "missing bearer token")
			return
		}

		userID, err := a.svc.Validate(r.Context(), raw)
		if err != nil {
			status, _ := classify(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mealmind", error="invalid_token"`)
			}
			writeError(w, r, a.logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// recoverPanics turns a handler panic into a 500 response.
func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rec)
			}
			err := oops.Code("HTTP_PANIC").
				With("method", r.Method).
				With("path", r.URL.Path).
				Errorf("panic: %v", rec)
			errutil.LogErrorContext(r.Context(), a.logger, "handler panicked", err)
			writeErrorBody(w, http.StatusInternalServerError, CodeInternal, internalMessage)
		}()
		next.ServeHTTP(w, r)
	})
}
