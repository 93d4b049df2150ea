// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestServer_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api, _ := newTestAPI(t, Options{})
	srv := NewServer("127.0.0.1:0", api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Empty(t, srv.Addr())

	errCh, err := srv.Start()
	require.NoError(t, err)

	_, err = srv.Start()
	require.Error(t, err, "second Start must fail")

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "Stop is idempotent")

	_, open := <-errCh
	assert.False(t, open, "error channel closes on graceful stop")
}

func TestSchemas(t *testing.T) {
	assert.Equal(t, []string{"login", "refresh", "register"}, SchemaNames())

	data, err := GenerateSchema("register")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$id": "`+SchemaBaseURL+`register.schema.json"`)
	assert.Contains(t, string(data), `"additionalProperties": false`)

	_, err = GenerateSchema("nope")
	require.Error(t, err)
}
