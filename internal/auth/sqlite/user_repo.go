// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
)

// UserRepository implements auth.UserRepository using SQLite.
type UserRepository struct {
	db dbIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db dbIface) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. A taken email yields auth.ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID.String(), user.Email, user.PasswordHash, toMillis(user.CreatedAt))
	if isUniqueViolation(err) {
		return oops.Code("USER_DUPLICATE_EMAIL").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE id = ?
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE email = ?
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		user      auth.User
		idStr     string
		createdAt int64
	)
	if err := row.Scan(&idStr, &user.Email, &user.PasswordHash, &createdAt); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish sql.ErrNoRows
	}
	id, err := parseID("users.id", idStr)
	if err != nil {
		return nil, err
	}
	user.ID = id
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}
