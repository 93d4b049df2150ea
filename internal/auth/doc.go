// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package auth implements account registration and the access/refresh token
// lifecycle.
//
// # Domain Types
//
//   - User - a registered account, created with NewUser
//   - RefreshSession - the stored half of a refresh token, created with NewRefreshSession
//
// A refresh session is active until it expires, is revoked, or is rotated.
// Those three states are terminal. Rotation chains sessions into a lineage;
// presenting a terminal session's token again revokes the whole lineage.
//
// # Storage
//
// UserRepository and SessionStore are implemented in the postgres and sqlite
// subpackages. SessionStore.Rotate must be atomic with respect to concurrent
// rotations of the same session.
//
// # Errors
//
// Service methods return oops errors that match exactly one of ErrValidation,
// ErrInvalidCredentials, ErrConflict, ErrInvalidSession or ErrStoreUnavailable
// under errors.Is. Each carries a client-safe public message.
package auth
