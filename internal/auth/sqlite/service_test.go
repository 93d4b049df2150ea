// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/auth/sqlite"
	"github.com/mealmind/mealmind/internal/token"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T) (*auth.Service, *clock) {
	t.Helper()
	return buildService(t, func(*sql.DB) []auth.ServiceOption { return nil })
}

func newThrottledService(t *testing.T, cfg auth.ThrottleConfig) (*auth.Service, *clock) {
	t.Helper()
	return buildService(t, func(db *sql.DB) []auth.ServiceOption {
		return []auth.ServiceOption{auth.WithLoginThrottle(sqlite.NewLoginAttemptStore(db), cfg)}
	})
}

func buildService(t *testing.T, extra func(*sql.DB) []auth.ServiceOption) (*auth.Service, *clock) {
	t.Helper()
	db := newTestDB(t)
	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}

	codec, err := token.New(token.Config{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "mealmind",
		Audience: "mealmind-users",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	svc, err := auth.NewService(
		sqlite.NewUserRepository(db),
		sqlite.NewSessionStore(db),
		auth.NewArgon2idHasher(),
		codec,
		append([]auth.ServiceOption{auth.WithClock(clk.Now)}, extra(db)...)...,
	)
	require.NoError(t, err)
	return svc, clk
}

func TestService_Flow(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t)

	registered, err := svc.Register(ctx, "  Chef@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "chef@example.com", registered.User.Email)

	_, err = svc.Register(ctx, "chef@example.com", "another password")
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = svc.Login(ctx, "chef@example.com", "wrong password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	login, err := svc.Login(ctx, "CHEF@example.com", "correct horse")
	require.NoError(t, err)

	userID, err := svc.Validate(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, userID)

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The access token stays valid until its TTL runs out.
	clk.Advance(59 * time.Minute)
	_, err = svc.Validate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)
	_, err = svc.Validate(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	require.NoError(t, svc.Logout(ctx, refreshed.RefreshToken))
	require.NoError(t, svc.Logout(ctx, refreshed.RefreshToken), "logout is idempotent")
	_, err = svc.Refresh(ctx, refreshed.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	// The registration lineage is untouched by the login lineage's logout.
	again, err := svc.Refresh(ctx, registered.RefreshToken)
	require.NoError(t, err)

	// The rotated registration session still counts as unrevoked.
	n, err := svc.LogoutAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = svc.Refresh(ctx, again.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestService_ReuseRevokesLineage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Register(ctx, "reuse@example.com", "correct horse")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	// Replaying the consumed token burns the whole chain.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidSession)
	assert.Equal(t, auth.OutcomeReuseDetected, auth.Outcome(err))

	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestService_ExpiredRefreshDoesNotRevokeLineage(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t)

	res, err := svc.Register(ctx, "expiry@example.com", "correct horse")
	require.NoError(t, err)

	clk.Advance(auth.DefaultRefreshTTL)
	_, err = svc.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, auth.ErrInvalidSession)
	assert.Equal(t, auth.OutcomeInvalidSession, auth.Outcome(err))
}

func TestService_ConcurrentRefresh(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	res, err := svc.Register(ctx, "race@example.com", "correct horse")
	require.NoError(t, err)

	const racers = 8
	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		winner atomic.Pointer[auth.Result]
	)
	losses := make(chan error, racers)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.Refresh(ctx, res.RefreshToken)
			if err == nil {
				wins.Add(1)
				winner.Store(out)
				return
			}
			losses <- err
		}()
	}
	wg.Wait()
	close(losses)

	require.Equal(t, int32(1), wins.Load(), "exactly one refresh succeeds")
	for err := range losses {
		assert.True(t, errors.Is(err, auth.ErrInvalidSession), "loser got %v", err)
	}

	// Losing racers are treated as replay, so the winner's new token is dead too.
	_, err = svc.Refresh(ctx, winner.Load().RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestService_LoginLockout(t *testing.T) {
	ctx := context.Background()
	svc, clk := newThrottledService(t, auth.ThrottleConfig{LockoutThreshold: 5, LockoutDuration: 15 * time.Minute})

	_, err := svc.Register(ctx, "chef@example.com", "correct horse")
	require.NoError(t, err)

	// A registered and an unregistered email are throttled identically.
	for _, email := range []string{"chef@example.com", "ghost@example.com"} {
		for i := range 5 {
			_, err = svc.Login(ctx, email, "wrong password")
			require.ErrorIs(t, err, auth.ErrInvalidCredentials, "%s attempt %d", email, i+1)
			if i >= 3 {
				clk.Advance(time.Minute)
			}
		}

		_, err = svc.Login(ctx, email, "wrong password")
		require.ErrorIs(t, err, auth.ErrThrottled, email)
		retry, ok := auth.RetryAfter(err)
		require.True(t, ok)
		assert.Greater(t, retry, 13*time.Minute)
	}

	_, err = svc.Login(ctx, "chef@example.com", "correct horse")
	require.ErrorIs(t, err, auth.ErrThrottled, "the right password is refused during a lockout")

	clk.Advance(15 * time.Minute)
	_, err = svc.Login(ctx, "chef@example.com", "correct horse")
	require.NoError(t, err)

	// Success forgets the failures.
	for range 3 {
		_, err = svc.Login(ctx, "chef@example.com", "wrong password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
}
