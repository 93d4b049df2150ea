// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Store-level sentinels. Repository implementations wrap these so the service
// can classify failures with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by UserRepository.Create when the email
	// is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrSessionConflict is returned by SessionStore.Rotate when the session
	// being rotated is no longer active.
	ErrSessionConflict = errors.New("refresh session is not active")
)

// Service-level taxonomy. Every error returned by Service matches exactly one
// of these with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrInvalidSession     = errors.New("invalid session")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrThrottled          = errors.New("too many failed login attempts")
)

// Error codes attached to service errors.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidSession     = "AUTH_INVALID_SESSION"
	CodeSessionReused      = "AUTH_SESSION_REUSED"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"
	CodeThrottled          = "AUTH_THROTTLED"
)

func validationError(field, msg string) error {
	return oops.Code(CodeValidation).
		With("field", field).
		Public(msg).
		Wrap(fmt.Errorf("%w: %s", ErrValidation, msg))
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).
		Public("invalid email or password").
		Wrap(ErrInvalidCredentials)
}

func conflictError(email string) error {
	return oops.Code(CodeConflict).
		With("email", email).
		Public("email already registered").
		Wrap(fmt.Errorf("%w: %w", ErrConflict, ErrDuplicateEmail))
}

// invalidSession deliberately drops the cause from the chain so the code stays
// AUTH_INVALID_SESSION; the reason is kept as context for logs.
func invalidSession(code, reason string) error {
	return oops.Code(code).
		With("reason", reason).
		Public("session is invalid or expired").
		Wrap(ErrInvalidSession)
}

func storeUnavailable(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Public("service temporarily unavailable").
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

// throttledError carries the wait of a throttled login.
type throttledError struct {
	retryAfter time.Duration
}

func (e *throttledError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrThrottled, e.retryAfter)
}

func (e *throttledError) Is(target error) bool {
	return target == ErrThrottled
}

// Throttled builds the error returned for a login refused by the throttle.
func Throttled(result RateLimitResult) error {
	return oops.Code(CodeThrottled).
		With("retry_after", result.Delay.String()).
		With("locked_out", result.IsLockedOut).
		Public("too many failed login attempts, try again later").
		Wrap(&throttledError{retryAfter: result.Delay})
}

// RetryAfter reports how long a throttled caller must wait before trying again.
func RetryAfter(err error) (time.Duration, bool) {
	var t *throttledError
	if errors.As(err, &t) {
		return t.retryAfter, true
	}
	return 0, false
}
