// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", auth.NormalizeEmail("  A@X.Com\t"))
	assert.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@x.com", "first.last+tag@sub.example.org"}
	for _, email := range valid {
		assert.NoError(t, auth.ValidateEmail(email), email)
	}

	invalid := []string{
		"",
		"plain",
		"missing-domain@",
		"@missing-local.com",
		"no-dot@domain",
		"two@@x.com",
		"spa ce@x.com",
		strings.Repeat("a", auth.MaxEmailLength) + "@x.com",
	}
	for _, email := range invalid {
		err := auth.ValidateEmail(email)
		require.Error(t, err, email)
		assert.True(t, errors.Is(err, auth.ErrValidation), email)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, auth.ValidatePassword("secret123"))
	assert.NoError(t, auth.ValidatePassword(strings.Repeat("p", auth.MinPasswordLength)))

	for _, pw := range []string{"", "short", strings.Repeat("p", auth.MaxPasswordLength+1)} {
		err := auth.ValidatePassword(pw)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrValidation))
	}
}

func TestNewUser(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))

	t.Run("creates user", func(t *testing.T) {
		u, err := auth.NewUser("a@x.com", "$argon2id$hash", now)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, u.ID)
		assert.Equal(t, "a@x.com", u.Email)
		assert.Equal(t, time.UTC, u.CreatedAt.Location())
		assert.True(t, u.CreatedAt.Equal(now))
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := auth.NewUser("nope", "$argon2id$hash", now)
		require.Error(t, err)
	})

	t.Run("rejects blank hash", func(t *testing.T) {
		_, err := auth.NewUser("a@x.com", "  ", now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_PASSWORD_HASH")
	})
}
