// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Credential constraints.
const (
	MinPasswordLength = 8
	MaxEmailLength    = 254
)

// emailRegex is a shape check only; deliverability is not verified.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User is a registered account.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser creates a User with a fresh ID. email must already be normalized.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
	}, nil
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks a normalized email address.
func ValidateEmail(email string) error {
	switch {
	case email == "":
		return validationError("email", "email is required")
	case len(email) > MaxEmailLength:
		return validationError("email", "email is too long")
	case !emailRegex.MatchString(email):
		return validationError("email", "email is not a valid address")
	}
	return nil
}

// ValidatePassword checks a plaintext password before hashing.
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return validationError("password", "password is required")
	case len(password) < MinPasswordLength:
		return validationError("password", "password must be at least 8 characters")
	case len(password) > MaxPasswordLength:
		return validationError("password", "password is too long")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping ErrDuplicateEmail
	// when the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
