// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/auth/sqlite"
	"github.com/mealmind/mealmind/internal/httpapi"
	"github.com/mealmind/mealmind/internal/store"
	"github.com/mealmind/mealmind/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var _ = Describe("auth API over SQLite", Ordered, func() {
	var (
		db     *sql.DB
		server *httptest.Server
		clock  *testClock
	)

	BeforeAll(func(ctx SpecContext) {
		var err error
		db, err = store.OpenSQLite(ctx, filepath.Join(GinkgoT().TempDir(), "e2e.db"))
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewSQLiteMigrator(db)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		clock = &testClock{now: time.Now().UTC().Truncate(time.Second)}
		codec, err := token.New(token.Config{
			Secret:   []byte("e2e-secret-e2e-secret-e2e-secret!"),
			Issuer:   "mealmind",
			Audience: "mealmind-users",
			TTL:      time.Hour,
		})
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
		svc, err := auth.NewService(
			sqlite.NewUserRepository(db),
			sqlite.NewSessionStore(db),
			auth.NewArgon2idHasher(),
			codec,
			auth.WithClock(clock.Now),
			auth.WithLogger(logger),
			auth.WithLoginThrottle(sqlite.NewLoginAttemptStore(db), auth.ThrottleConfig{
				LockoutThreshold: 5,
				LockoutDuration:  15 * time.Minute,
			}),
		)
		Expect(err).NotTo(HaveOccurred())

		api, err := httpapi.New(svc, httpapi.Options{
			PathPrefix:     "/api/v1",
			RequestTimeout: 10 * time.Second,
			CORSOrigins:    []string{"*"},
			Logger:         logger,
			Clock:          clock.Now,
		})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(api)
	})

	AfterAll(func() {
		if server != nil {
			server.Close()
		}
		if db != nil {
			Expect(db.Close()).To(Succeed())
		}
	})

	post := func(path string, body any, bearer string) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1"+path, &buf)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	get := func(path, bearer string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1"+path, nil)
		Expect(err).NotTo(HaveOccurred())
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := server.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	readInto := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, v)).To(Succeed(), string(data))
	}

	expectStatus := func(resp *http.Response, status int) {
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(status))
	}

	creds := map[string]string{"email": "Chef@Example.com", "password": "correct horse battery"}
	var first tokens

	It("registers a new account and returns a token pair", func() {
		resp := post("/auth/register", creds, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		readInto(resp, &first)

		Expect(first.TokenType).To(Equal("Bearer"))
		Expect(first.ExpiresIn).To(Equal(int64(3600)))
		Expect(first.AccessToken).NotTo(BeEmpty())
		Expect(first.RefreshToken).NotTo(BeEmpty())
		Expect(first.User.Email).To(Equal("chef@example.com"))
	})

	It("rejects a second registration of the same email", func() {
		resp := post("/auth/register", map[string]string{"email": "chef@example.com", "password": "another password"}, "")
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		var body apiError
		readInto(resp, &body)
		Expect(body.Error.Code).To(Equal(httpapi.CodeConflict))
	})

	It("serves /me for the access token", func() {
		resp := get("/me", first.AccessToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var me map[string]string
		readInto(resp, &me)
		Expect(me).To(Equal(map[string]string{"id": first.User.ID, "email": "chef@example.com"}))
	})

	It("rejects a wrong password without saying which part was wrong", func() {
		resp := post("/auth/login", map[string]string{"email": "chef@example.com", "password": "wrong password"}, "")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		var wrongPassword apiError
		readInto(resp, &wrongPassword)

		resp = post("/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong password"}, "")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		var unknownUser apiError
		readInto(resp, &unknownUser)

		Expect(unknownUser).To(Equal(wrongPassword))
	})

	var rotated tokens

	It("rejects the access token once it expires", func() {
		clock.Advance(61 * time.Minute)
		resp := get("/me", first.AccessToken)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bearer"))
		var body apiError
		readInto(resp, &body)
		Expect(body.Error.Code).To(Equal(httpapi.CodeInvalidSession))
	})

	It("exchanges the refresh token for a new pair", func() {
		resp := post("/auth/refresh", map[string]string{"refresh_token": first.RefreshToken}, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		readInto(resp, &rotated)
		Expect(rotated.RefreshToken).NotTo(Equal(first.RefreshToken))
		Expect(rotated.User.ID).To(Equal(first.User.ID))

		expectStatus(get("/me", rotated.AccessToken), http.StatusOK)
	})

	It("treats reuse of the old refresh token as theft and revokes the lineage", func() {
		resp := post("/auth/refresh", map[string]string{"refresh_token": first.RefreshToken}, "")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		var body apiError
		readInto(resp, &body)
		Expect(body.Error.Code).To(Equal(httpapi.CodeInvalidSession))

		expectStatus(post("/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken}, ""), http.StatusUnauthorized)
	})

	It("logs out a fresh session so its refresh token stops working", func() {
		var session tokens
		resp := post("/auth/login", creds, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		readInto(resp, &session)

		expectStatus(post("/auth/logout", map[string]string{"refresh_token": session.RefreshToken}, ""), http.StatusNoContent)
		expectStatus(post("/auth/logout", map[string]string{"refresh_token": session.RefreshToken}, ""), http.StatusNoContent)
		expectStatus(post("/auth/refresh", map[string]string{"refresh_token": session.RefreshToken}, ""), http.StatusUnauthorized)
	})

	It("logs out every session of the user", func() {
		var a, b tokens
		resp := post("/auth/login", creds, "")
		readInto(resp, &a)
		resp = post("/auth/login", creds, "")
		readInto(resp, &b)

		expectStatus(post("/auth/logout-all", nil, a.AccessToken), http.StatusNoContent)
		expectStatus(post("/auth/refresh", map[string]string{"refresh_token": a.RefreshToken}, ""), http.StatusUnauthorized)
		expectStatus(post("/auth/refresh", map[string]string{"refresh_token": b.RefreshToken}, ""), http.StatusUnauthorized)
	})

	It("locks out an email after repeated failures", func() {
		guess := map[string]string{"email": "intruder@example.com", "password": "guess guess"}
		for range 5 {
			expectStatus(post("/auth/login", guess, ""), http.StatusUnauthorized)
			clock.Advance(time.Minute)
		}

		resp := post("/auth/login", guess, "")
		Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(resp.Header.Get("Retry-After")).To(Equal("840"))
		var body apiError
		readInto(resp, &body)
		Expect(body.Error.Code).To(Equal(httpapi.CodeTooManyRequests))

		expectStatus(post("/auth/login", creds, ""), http.StatusOK)
	})

	It("answers health checks", func() {
		resp := get("/health", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var body map[string]string
		readInto(resp, &body)
		Expect(body).To(HaveKeyWithValue("status", "ok"))
	})
})
