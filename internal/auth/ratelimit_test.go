// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mealmind/mealmind/internal/auth"
)

func TestThrottleConfig_Check(t *testing.T) {
	cfg := auth.DefaultThrottleConfig()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	failedJustNow := func(n int) *auth.LoginAttempts {
		return &auth.LoginAttempts{Email: "a@x.com", Failures: n, LastFailureAt: now}
	}

	t.Run("no record allows the attempt", func(t *testing.T) {
		result := cfg.Check(nil, now)
		assert.True(t, result.Allowed())
		assert.False(t, result.IsLockedOut)
	})

	t.Run("first failures carry no delay", func(t *testing.T) {
		for n := 1; n <= 3; n++ {
			assert.True(t, cfg.Check(failedJustNow(n), now).Allowed(), "failures=%d", n)
		}
	})

	t.Run("later failures return progressive delay", func(t *testing.T) {
		assert.Equal(t, time.Second, cfg.Check(failedJustNow(4), now).Delay)
		assert.Equal(t, 2*time.Second, cfg.Check(failedJustNow(5), now).Delay)
		assert.Equal(t, 4*time.Second, cfg.Check(failedJustNow(6), now).Delay)
		assert.Equal(t, 32*time.Second, cfg.Check(failedJustNow(9), now).Delay)
	})

	t.Run("delay is counted from the last failure", func(t *testing.T) {
		attempts := failedJustNow(6)

		result := cfg.Check(attempts, now.Add(3*time.Second))
		assert.Equal(t, time.Second, result.Delay)
		assert.False(t, result.IsLockedOut)

		assert.True(t, cfg.Check(attempts, now.Add(4*time.Second)).Allowed())
	})

	t.Run("delay is capped for large thresholds", func(t *testing.T) {
		wide := auth.ThrottleConfig{LockoutThreshold: 100, LockoutDuration: time.Hour}
		assert.Equal(t, 32*time.Second, wide.Check(failedJustNow(80), now).Delay)
	})

	t.Run("existing lockout is detected", func(t *testing.T) {
		until := now.Add(10 * time.Minute)
		attempts := failedJustNow(10)
		attempts.LockedUntil = &until

		result := cfg.Check(attempts, now.Add(time.Minute))
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, 9*time.Minute, result.Delay)
	})

	t.Run("expired lockout and old failures are forgotten", func(t *testing.T) {
		until := now.Add(cfg.LockoutDuration)
		attempts := failedJustNow(10)
		attempts.LockedUntil = &until

		result := cfg.Check(attempts, until)
		assert.True(t, result.Allowed())
		assert.False(t, result.IsLockedOut)
	})
}
