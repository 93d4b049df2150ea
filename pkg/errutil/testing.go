// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package errutil

import (
	"errors"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestingT is the part of *testing.T the assertions need. GinkgoT satisfies
// it as well.
type TestingT interface {
	require.TestingT
	Helper()
}

func asOops(t TestingT, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err carries the given oops code.
func AssertErrorCode(t TestingT, err error, code string) {
	t.Helper()
	assert.Equal(t, code, asOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t TestingT, err error, key string, value any) {
	t.Helper()
	kv := asOops(t, err).Context()
	require.Contains(t, kv, key)
	assert.Equal(t, value, kv[key])
}

// AssertPublic asserts the client-facing message of err. Clients see nothing
// else, so this is what keeps internals out of responses.
func AssertPublic(t TestingT, err error, message string) {
	t.Helper()
	assert.Equal(t, message, asOops(t, err).Public(), "error: %v", err)
}

// AssertClass asserts that err is in the class of sentinel and carries code.
func AssertClass(t TestingT, err error, sentinel error, code string) {
	t.Helper()
	assert.True(t, errors.Is(err, sentinel), "expected %v in chain of %v", sentinel, err)
	AssertErrorCode(t, err, code)
}
