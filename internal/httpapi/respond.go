// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/pkg/errutil"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeRequestTooLarge    = "request_too_large"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidSession     = "invalid_session"
	CodeConflict           = "conflict"
	CodeTooManyRequests    = "too_many_requests"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal"
)

const internalMessage = "internal server error"

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// tokenBody is the envelope returned by register, login and refresh.
type tokenBody struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         userBody `json:"user"`
}

func newTokenBody(res *auth.Result, now time.Time) tokenBody {
	expiresIn := res.AccessExpiresAt.Sub(now).Round(time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return tokenBody{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(expiresIn / time.Second),
		User:         newUserBody(res.User),
	}
}

func newUserBody(u *auth.User) userBody {
	return userBody{ID: u.ID.String(), Email: u.Email}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps a service error to a status and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, CodeInvalidSession
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, auth.ErrThrottled):
		return http.StatusTooManyRequests, CodeTooManyRequests
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError writes the envelope for a service error. Server errors are
// logged and reported with their public message only.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
		msg := internalMessage
		if status == http.StatusServiceUnavailable {
			msg = oops.GetPublic(err, "service temporarily unavailable")
		}
		writeErrorBody(w, status, code, msg)
		return
	}
	if wait, ok := auth.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(wait), 10))
	}
	writeErrorBody(w, status, code, oops.GetPublic(err, http.StatusText(status)))
}

// retryAfterSeconds rounds up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
