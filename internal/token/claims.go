// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ClaimsVersion is the schema version written into every token. Tokens with a
// different version are rejected.
const ClaimsVersion = 1

// KindAccess marks a token as an access token.
const KindAccess = "access"

// Claims is the complete payload of an access token. New fields require a
// ClaimsVersion bump.
type Claims struct {
	Kind    string `json:"kind"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

func newClaims(userID ulid.ULID, issuer, audience string, issuedAt, expiresAt *jwt.NumericDate) *Claims {
	return &Claims{
		Kind:    KindAccess,
		Version: ClaimsVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: expiresAt,
			NotBefore: issuedAt,
			IssuedAt:  issuedAt,
			ID:        ulid.Make().String(),
		},
	}
}

// validate checks the fields the JWT library does not know about.
func (c *Claims) validate() (ulid.ULID, error) {
	if c.Kind != KindAccess {
		return ulid.ULID{}, fmt.Errorf("unexpected token kind %q", c.Kind)
	}
	if c.Version != ClaimsVersion {
		return ulid.ULID{}, fmt.Errorf("unsupported claims version %d", c.Version)
	}
	userID, err := ulid.ParseStrict(c.Subject)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid subject: %w", err)
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return ulid.ULID{}, errors.New("zero subject")
	}
	return userID, nil
}
