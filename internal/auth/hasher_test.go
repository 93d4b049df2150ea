// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces PHC encoded argon2id hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrEmptyPassword))
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("rejects password above maximum length", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", auth.MaxPasswordLength+1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrPasswordTooLong))
	})

	t.Run("accepts password at maximum length", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", auth.MaxPasswordLength))
		assert.NoError(t, err)
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password is a mismatch, not an error", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("oversized candidate is a mismatch", func(t *testing.T) {
		ok, err := hasher.Verify(strings.Repeat("x", auth.MaxPasswordLength+1), hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	tests := []struct {
		name    string
		hash    string
		wantMsg string
	}{
		{"not a PHC string", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "unsupported hash algorithm"},
		{"bad version segment", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "invalid version segment"},
		{"unknown version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "unsupported argon2 version"},
		{"bad parameter segment", "$argon2id$v=19$invalid$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "invalid parameter segment"},
		{"memory too large", "$argon2id$v=19$m=99999999,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "memory parameter"},
		{"too many iterations", "$argon2id$v=19$m=65536,t=1000,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "time parameter"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA", "threads value"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaGhhc2hoYXNoaGFzaA", "invalid salt"},
		{"short key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaA", "invalid key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			assert.True(t, errors.Is(err, auth.ErrMalformedHash))
			assert.Contains(t, err.Error(), tt.wantMsg)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		})
	}
}
