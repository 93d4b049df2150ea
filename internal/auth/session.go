// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenBytes is the entropy of an opaque refresh token (64 hex chars).
const RefreshTokenBytes = 32

// SessionState is the lifecycle state of a RefreshSession at a point in time.
type SessionState int

// Session states. Everything other than SessionActive is terminal.
const (
	SessionActive SessionState = iota
	SessionExpired
	SessionRotated
	SessionRevoked
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionExpired:
		return "expired"
	case SessionRotated:
		return "rotated"
	case SessionRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// RefreshSession is the server-side record behind a refresh token.
//
// Only the SHA-256 of the token is stored. LineageID is shared by every
// session produced by rotating the session created at login, and equals the
// ID of that first session.
type RefreshSession struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	LineageID  ulid.ULID
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy *ulid.ULID
}

// NewRefreshSession creates a validated RefreshSession. A zero lineageID
// starts a new lineage rooted at the new session.
func NewRefreshSession(userID, lineageID ulid.ULID, tokenHash string, now time.Time, ttl time.Duration) (*RefreshSession, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}

	id := ulid.Make()
	if lineageID.Compare(ulid.ULID{}) == 0 {
		lineageID = id
	}
	now = now.UTC()
	return &RefreshSession{
		ID:        id,
		UserID:    userID,
		LineageID: lineageID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// StateAt reports the session state at t. Revocation wins over rotation,
// and both win over expiry.
func (s *RefreshSession) StateAt(t time.Time) SessionState {
	switch {
	case s.Revoked:
		return SessionRevoked
	case s.ReplacedBy != nil:
		return SessionRotated
	case !t.Before(s.ExpiresAt):
		return SessionExpired
	default:
		return SessionActive
	}
}

// IsActiveAt returns true if the session can be used at t.
func (s *RefreshSession) IsActiveAt(t time.Time) bool {
	return s.StateAt(t) == SessionActive
}

// GenerateRefreshToken creates a random opaque token and its hash.
// The plaintext token goes to the client; the hash is stored.
func GenerateRefreshToken() (token, hash string, err error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the hex SHA-256 of a refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionStore persists refresh sessions.
//
// Implementations must make Rotate atomic: of any number of concurrent Rotate
// calls for the same oldID, at most one succeeds and the rest return an error
// wrapping ErrSessionConflict. A failed or cancelled Rotate leaves the old
// session untouched and the new one absent.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *RefreshSession) error

	// GetByTokenHash retrieves a session by token hash. Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// Revoke marks a session revoked. Revoking an already revoked session is
	// not an error. Returns ErrNotFound if the session does not exist.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time) error

	// Rotate stores next and marks oldID as replaced by it, provided oldID is
	// active at now.
	Rotate(ctx context.Context, oldID ulid.ULID, next *RefreshSession, now time.Time) error

	// RevokeLineage revokes every session of a lineage and returns how many
	// sessions changed state.
	RevokeLineage(ctx context.Context, lineageID ulid.ULID, at time.Time) (int64, error)

	// RevokeAllForUser revokes every session owned by a user.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error)

	// DeleteExpired removes sessions that expired before the cutoff and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
