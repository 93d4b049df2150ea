// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// Upper bounds accepted when reading a stored hash. A tampered row must not be
// able to make a single verification arbitrarily expensive.
const (
	maxArgon2Memory  = 1024 * 1024 // 1 GB
	maxArgon2Time    = 16
	minArgon2KeyLen  = 16
	maxArgon2KeyLen  = 128
	minArgon2SaltLen = 8
)

// MaxPasswordLength bounds the input to the hash function.
const MaxPasswordLength = 1024

var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLength.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrMalformedHash is returned by Verify when the stored hash cannot be
	// parsed. It is distinct from a mismatch, which is (false, nil).
	ErrMalformedHash = errors.New("malformed password hash")
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// wrapping ErrMalformedHash on an unreadable hash.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if err := checkPasswordInput(password); err != nil {
		return "", err
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").With("operation", "crypto/rand.Read").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the encoded hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if len(password) > MaxPasswordLength {
		return false, nil
	}

	p, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // key length bounded in decode
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

func checkPasswordInput(password string) error {
	if password == "" {
		return oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_PASSWORD_TOO_LONG").
			With("max", MaxPasswordLength).
			Wrap(ErrPasswordTooLong)
	}
	return nil
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func malformedHash(format string, args ...any) error {
	return oops.Code("AUTH_INVALID_HASH").Wrapf(ErrMalformedHash, format, args...)
}

func decodeArgon2Hash(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, malformedHash("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, malformedHash("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, malformedHash("invalid version segment")
	}
	if version != argon2.Version {
		return nil, malformedHash("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, malformedHash("invalid parameter segment")
	}
	if memory == 0 || memory > maxArgon2Memory {
		return nil, malformedHash("memory parameter %d out of range", memory)
	}
	if iterations == 0 || iterations > maxArgon2Time {
		return nil, malformedHash("time parameter %d out of range", iterations)
	}
	if threads == 0 || threads > 255 {
		return nil, malformedHash("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minArgon2SaltLen {
		return nil, malformedHash("invalid salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < minArgon2KeyLen || len(key) > maxArgon2KeyLen {
		return nil, malformedHash("invalid key")
	}

	return &argon2Params{
		memory:  memory,
		time:    iterations,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}
