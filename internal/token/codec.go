// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package token issues and verifies signed access tokens.
//
// Tokens are HS256 JWTs with a fixed claims schema (Claims). Verification is a
// pure function of the token, the secret and the supplied time; there is no
// revocation list, so the TTL bounds how long a leaked token stays usable.
package token

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTTL is applied by New when Config.TTL is zero.
const DefaultTTL = 60 * time.Minute

// DefaultLeeway is the configured clock-skew tolerance unless overridden. New
// takes Config.Leeway as given: zero means the window is exactly [iat, exp).
const DefaultLeeway = 5 * time.Second

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 32

// maxLeeway caps clock-skew tolerance so misconfiguration cannot silently
// extend token lifetime by hours.
const maxLeeway = 5 * time.Minute

var (
	// ErrExpired is returned by Verify when the token is past its expiry.
	ErrExpired = errors.New("access token expired")

	// ErrInvalid is returned by Verify for any other rejection: bad
	// signature, wrong algorithm, wrong issuer or audience, malformed input.
	ErrInvalid = errors.New("access token invalid")
)

// Config configures a Codec.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Codec signs and verifies access tokens. It is safe for concurrent use.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

// New creates a Codec. The secret is copied, so later changes to cfg.Secret
// have no effect.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer and audience are required")
	}
	if cfg.TTL < 0 || cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("ttl", cfg.TTL.String()).
			With("leeway", cfg.Leeway.String()).
			Errorf("ttl and leeway must be non-negative and leeway at most %s", maxLeeway)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret:   slices.Clone(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		leeway:   cfg.Leeway,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for userID valid on [now, now+TTL) and returns it with
// its expiry.
func (c *Codec) Issue(userID ulid.ULID, now time.Time) (string, time.Time, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").Errorf("user ID cannot be zero")
	}

	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(issuedAt.Add(c.ttl))
	claims := newClaims(userID, c.issuer, c.audience, issuedAt, expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "sign token").
			Wrap(err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks the token at now and returns the user it was issued to.
func (c *Codec) Verify(tokenString string, now time.Time) (ulid.ULID, error) {
	if tokenString == "" {
		return ulid.ULID{}, invalid("empty token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, c.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ulid.ULID{}, oops.Code("TOKEN_EXPIRED").
				Public("access token expired").
				Wrap(ErrExpired)
		}
		return ulid.ULID{}, invalid(err.Error())
	}

	userID, err := claims.validate()
	if err != nil {
		return ulid.ULID{}, invalid(err.Error())
	}
	return userID, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, oops.Errorf("unexpected signing method %s", t.Method.Alg())
	}
	return c.secret, nil
}

func invalid(reason string) error {
	return oops.Code("TOKEN_INVALID").
		With("reason", reason).
		Public("access token invalid").
		Wrap(ErrInvalid)
}
