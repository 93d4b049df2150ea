// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mealmind/mealmind/internal/auth"
)

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !a.decode(w, r, "register", &req) {
		return
	}
	res, err := a.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTokenBody(res, a.clock()))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !a.decode(w, r, "login", &req) {
		return
	}
	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenBody(res, a.clock()))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !a.decode(w, r, "refresh", &req) {
		return
	}
	res, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenBody(res, a.clock()))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !a.decode(w, r, "refresh", &req) {
		return
	}
	if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	if _, err := a.svc.LogoutAll(r.Context(), userID); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	user, err := a.svc.User(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mealmind", error="invalid_token"`)
		}
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserBody(user))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body, validates it against the named request schema
// and decodes it into dst. It writes the error response and returns false
// when the body is unacceptable.
func (a *API) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "request body too large")
			return false
		}
		writeErrorBody(w, http.StatusBadRequest, CodeInvalidRequest, "unable to read request body")
		return false
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		writeErrorBody(w, http.StatusBadRequest, CodeInvalidRequest, "request body is not valid JSON")
		return false
	}
	if err := a.schemas[schema].Validate(doc); err != nil {
		writeErrorBody(w, http.StatusBadRequest, CodeInvalidRequest, schemaMessage(err))
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErrorBody(w, http.StatusBadRequest, CodeInvalidRequest, "request body does not match the expected shape")
		return false
	}
	return true
}

// schemaMessage flattens a schema validation error onto one line.
func schemaMessage(err error) string {
	return "invalid request body: " + strings.Join(strings.Fields(err.Error()), " ")
}
