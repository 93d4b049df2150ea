// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package httpapi exposes the auth service as a JSON API over net/http.
//
// Routes, relative to an optional path prefix:
//
//	POST /auth/register    create an account and sign in
//	POST /auth/login       exchange credentials for a token pair
//	POST /auth/refresh     rotate a refresh token
//	POST /auth/logout      revoke a refresh token
//	POST /auth/logout-all  revoke every session of the bearer's user
//	GET  /me               the bearer's account
//	GET  /health           liveness
//
// Errors use the envelope {"error":{"code":"...","message":"..."}}.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mealmind/mealmind/internal/auth"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Authenticator is the part of auth.Service the API calls.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Result, error)
	Validate(ctx context.Context, accessToken string) (ulid.ULID, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error)
	User(ctx context.Context, id ulid.ULID) (*auth.User, error)
}

// Options configures an API.
type Options struct {
	// PathPrefix is prepended to every route, e.g. "/api/v1".
	PathPrefix string
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
	// CORSOrigins lists allowed origins as glob patterns. Empty allows none.
	CORSOrigins []string
	Logger      *slog.Logger
	// Clock is used to compute expires_in. Defaults to time.Now.
	Clock func() time.Time
}

// API is the HTTP handler for the auth service.
type API struct {
	svc     Authenticator
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
	clock   func() time.Time
	schemas map[string]*jschema.Schema
	handler http.Handler
}

// New builds the API handler.
func New(svc Authenticator, opts Options) (*API, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	cors, err := newCORSPolicy(opts.CORSOrigins)
	if err != nil {
		return nil, err
	}

	a := &API{
		svc:     svc,
		logger:  opts.Logger,
		prefix:  opts.PathPrefix,
		timeout: opts.RequestTimeout,
		clock:   opts.Clock,
		schemas: schemas,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.clock == nil {
		a.clock = time.Now
	}

	mux := http.NewServeMux()
	a.route(mux, http.MethodPost, "/auth/register", http.HandlerFunc(a.handleRegister))
	a.route(mux, http.MethodPost, "/auth/login", http.HandlerFunc(a.handleLogin))
	a.route(mux, http.MethodPost, "/auth/refresh", http.HandlerFunc(a.handleRefresh))
	a.route(mux, http.MethodPost, "/auth/logout", http.HandlerFunc(a.handleLogout))
	a.route(mux, http.MethodPost, "/auth/logout-all", a.requireBearer(http.HandlerFunc(a.handleLogoutAll)))
	a.route(mux, http.MethodGet, "/me", a.requireBearer(http.HandlerFunc(a.handleMe)))
	mux.HandleFunc(http.MethodGet+" "+a.prefix+"/health", handleHealth)

	a.handler = a.recoverPanics(cors.handler(mux))
	return a, nil
}

func (a *API) route(mux *http.ServeMux, method, path string, h http.Handler) {
	route := method + " " + a.prefix + path
	mux.Handle(route, a.instrument(route, h))
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}
