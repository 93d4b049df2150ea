// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/mealmind/mealmind/internal/auth"
)

// TestingT is the subset of testing.T used by the constructors.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks auth.UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID mocks auth.UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// GetByEmail mocks auth.UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// MockSessionStore is a mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock that asserts its expectations on cleanup.
func NewMockSessionStore(t TestingT) *MockSessionStore {
	m := &MockSessionStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks auth.SessionStore.Create.
func (m *MockSessionStore) Create(ctx context.Context, session *auth.RefreshSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// GetByTokenHash mocks auth.SessionStore.GetByTokenHash.
func (m *MockSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshSession, error) {
	args := m.Called(ctx, tokenHash)
	session, _ := args.Get(0).(*auth.RefreshSession)
	return session, args.Error(1)
}

// Revoke mocks auth.SessionStore.Revoke.
func (m *MockSessionStore) Revoke(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// Rotate mocks auth.SessionStore.Rotate.
func (m *MockSessionStore) Rotate(ctx context.Context, oldID ulid.ULID, next *auth.RefreshSession, now time.Time) error {
	args := m.Called(ctx, oldID, next, now)
	return args.Error(0)
}

// RevokeLineage mocks auth.SessionStore.RevokeLineage.
func (m *MockSessionStore) RevokeLineage(ctx context.Context, lineageID ulid.ULID, at time.Time) (int64, error) {
	args := m.Called(ctx, lineageID, at)
	return args.Get(0).(int64), args.Error(1) //nolint:forcetypeassert // test mock
}

// RevokeAllForUser mocks auth.SessionStore.RevokeAllForUser.
func (m *MockSessionStore) RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, at)
	return args.Get(0).(int64), args.Error(1) //nolint:forcetypeassert // test mock
}

// DeleteExpired mocks auth.SessionStore.DeleteExpired.
func (m *MockSessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1) //nolint:forcetypeassert // test mock
}

// MockLoginAttemptStore is a mock of auth.LoginAttemptStore.
type MockLoginAttemptStore struct {
	mock.Mock
}

// NewMockLoginAttemptStore creates a mock that asserts its expectations on cleanup.
func NewMockLoginAttemptStore(t TestingT) *MockLoginAttemptStore {
	m := &MockLoginAttemptStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Get mocks auth.LoginAttemptStore.Get.
func (m *MockLoginAttemptStore) Get(ctx context.Context, email string) (*auth.LoginAttempts, error) {
	args := m.Called(ctx, email)
	attempts, _ := args.Get(0).(*auth.LoginAttempts)
	return attempts, args.Error(1)
}

// RecordFailure mocks auth.LoginAttemptStore.RecordFailure.
func (m *MockLoginAttemptStore) RecordFailure(ctx context.Context, email string, at time.Time, cfg auth.ThrottleConfig) (*auth.LoginAttempts, error) {
	args := m.Called(ctx, email, at, cfg)
	attempts, _ := args.Get(0).(*auth.LoginAttempts)
	return attempts, args.Error(1)
}

// Reset mocks auth.LoginAttemptStore.Reset.
func (m *MockLoginAttemptStore) Reset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// DeleteStale mocks auth.LoginAttemptStore.DeleteStale.
func (m *MockLoginAttemptStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1) //nolint:forcetypeassert // test mock
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks auth.PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify mocks auth.PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// MockTokenCodec is a mock of auth.TokenCodec.
type MockTokenCodec struct {
	mock.Mock
}

// NewMockTokenCodec creates a mock that asserts its expectations on cleanup.
func NewMockTokenCodec(t TestingT) *MockTokenCodec {
	m := &MockTokenCodec{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue mocks auth.TokenCodec.Issue.
func (m *MockTokenCodec) Issue(userID ulid.ULID, now time.Time) (string, time.Time, error) {
	args := m.Called(userID, now)
	return args.String(0), args.Get(1).(time.Time), args.Error(2) //nolint:forcetypeassert // test mock
}

// Verify mocks auth.TokenCodec.Verify.
func (m *MockTokenCodec) Verify(token string, now time.Time) (ulid.ULID, error) {
	args := m.Called(token, now)
	return args.Get(0).(ulid.ULID), args.Error(1) //nolint:forcetypeassert // test mock
}
