// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/mealmind/mealmind/pkg/errutil"
)

// SweepConfig controls expired-session cleanup.
type SweepConfig struct {
	Interval  time.Duration // How often to run a sweep
	Retention time.Duration // How long expired sessions are kept before deletion
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:  time.Hour,
		Retention: 24 * time.Hour,
	}
}

// Sweeper periodically deletes expired refresh sessions. Expired sessions are
// already rejected at read time, so sweeping only reclaims space.
type Sweeper struct {
	cfg      SweepConfig
	sessions SessionStore
	logger   *slog.Logger
	clock    func() time.Time

	attempts      LoginAttemptStore
	attemptWindow time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// SweepLoginAttempts also deletes login failure records idle for longer than
// window. window should be at least the throttle's LockoutDuration.
func SweepLoginAttempts(store LoginAttemptStore, window time.Duration) SweeperOption {
	return func(w *Sweeper) {
		w.attempts = store
		w.attemptWindow = window
	}
}

// NewSweeper creates a new Sweeper.
func NewSweeper(cfg SweepConfig, sessions SessionStore, logger *slog.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if sessions == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("session store is required")
	}
	if cfg.Interval <= 0 || cfg.Retention < 0 {
		return nil, oops.Code("SWEEPER_INVALID").
			With("interval", cfg.Interval.String()).
			With("retention", cfg.Retention.String()).
			Errorf("interval must be positive and retention non-negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Sweeper{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.attempts != nil && w.attemptWindow <= 0 {
		return nil, oops.Code("SWEEPER_INVALID").
			With("attempt_window", w.attemptWindow.String()).
			Errorf("login attempt window must be positive")
	}
	return w, nil
}

// RunOnce deletes sessions that expired more than Retention ago, and idle
// login failure records when configured. It returns the sessions deleted.
func (w *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := w.clock()
	if w.attempts != nil {
		stale, err := w.attempts.DeleteStale(ctx, now.Add(-w.attemptWindow))
		if err != nil {
			return 0, oops.Code("SWEEP_FAILED").With("operation", "delete stale login attempts").Wrap(err)
		}
		if stale > 0 {
			w.logger.DebugContext(ctx, "swept idle login attempts", "count", stale)
		}
	}

	cutoff := now.Add(-w.cfg.Retention)
	n, err := w.sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("SWEEP_FAILED").With("cutoff", cutoff).Wrap(err)
	}
	if n > 0 {
		SessionsSwept.Add(float64(n))
		w.logger.InfoContext(ctx, "swept expired refresh sessions", "count", n)
	}
	return n, nil
}

// Start begins periodic sweeping. It returns immediately.
func (w *Sweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the sweeper and waits for the current cycle to finish.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			errutil.LogErrorContext(ctx, w.logger, "session sweep failed", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
