// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"context"
	"time"
)

// Login throttling defaults.
const (
	// DefaultLockoutThreshold is the number of failures that triggers a lockout.
	DefaultLockoutThreshold = 10

	// DefaultLockoutDuration is how long an email stays locked out. Failures
	// older than this are forgotten.
	DefaultLockoutDuration = 15 * time.Minute

	// freeAttempts failures are tolerated before any delay applies.
	freeAttempts = 3

	// maxDelay caps the progressive delay before lockout.
	maxDelay = 32 * time.Second
)

// ThrottleConfig controls login throttling. Attempts are keyed by normalized
// email whether or not an account exists, so a throttled response says
// nothing about registration.
type ThrottleConfig struct {
	LockoutThreshold int           // Failures that trigger a lockout
	LockoutDuration  time.Duration // Lockout length and failure memory window
}

// DefaultThrottleConfig returns the default throttle configuration.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		LockoutThreshold: DefaultLockoutThreshold,
		LockoutDuration:  DefaultLockoutDuration,
	}
}

// LoginAttempts is the failure record for one email.
type LoginAttempts struct {
	Email         string
	Failures      int
	LastFailureAt time.Time
	LockedUntil   *time.Time
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Delay is the time to wait before another attempt is accepted.
	Delay time.Duration

	// IsLockedOut indicates the email is locked until the delay passes.
	IsLockedOut bool
}

// Allowed reports whether an attempt may proceed now.
func (r RateLimitResult) Allowed() bool {
	return r.Delay <= 0
}

// Check evaluates the throttle state of attempts at now. A nil record allows
// the attempt.
//
// Up to freeAttempts failures carry no delay. After that each failure doubles
// the wait from one second up to maxDelay, counted from the last failure.
// Reaching LockoutThreshold locks the email for LockoutDuration.
func (c ThrottleConfig) Check(attempts *LoginAttempts, now time.Time) RateLimitResult {
	if attempts == nil {
		return RateLimitResult{}
	}

	if attempts.LockedUntil != nil && now.Before(*attempts.LockedUntil) {
		return RateLimitResult{Delay: attempts.LockedUntil.Sub(now), IsLockedOut: true}
	}
	if now.Sub(attempts.LastFailureAt) >= c.LockoutDuration {
		return RateLimitResult{}
	}

	if attempts.Failures <= freeAttempts {
		return RateLimitResult{}
	}
	delay := maxDelay
	if n := attempts.Failures - freeAttempts - 1; n < 6 {
		delay = min(time.Duration(1<<n)*time.Second, maxDelay)
	}
	if wait := attempts.LastFailureAt.Add(delay).Sub(now); wait > 0 {
		return RateLimitResult{Delay: wait}
	}
	return RateLimitResult{}
}

// LoginAttemptStore persists login failures per normalized email.
type LoginAttemptStore interface {
	// Get returns the failure record for email, or ErrNotFound.
	Get(ctx context.Context, email string) (*LoginAttempts, error)

	// RecordFailure atomically counts one failure at at and returns the
	// updated record. The count restarts at one when the previous failure
	// is older than cfg.LockoutDuration. Reaching cfg.LockoutThreshold sets
	// LockedUntil to at plus cfg.LockoutDuration.
	RecordFailure(ctx context.Context, email string, at time.Time, cfg ThrottleConfig) (*LoginAttempts, error)

	// Reset forgets the failures of email. Resetting an unknown email succeeds.
	Reset(ctx context.Context, email string) error

	// DeleteStale removes records whose last failure is before the cutoff
	// and that are not locked past it.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
