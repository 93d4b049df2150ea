// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package config

import (
	"net/url"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// YAML renders the configuration with secrets redacted. Durations are
// written in time.Duration string form so the output can be fed back to Load.
func (c *Config) YAML() ([]byte, error) {
	secret := ""
	if c.Auth.JWTSecret != "" {
		secret = redacted
	}

	doc := map[string]any{
		"auth": map[string]any{
			"jwt_secret":        secret,
			"issuer":            c.Auth.Issuer,
			"audience":          c.Auth.Audience,
			"access_ttl":        c.Auth.AccessTTL.String(),
			"refresh_ttl":       c.Auth.RefreshTTL.String(),
			"leeway":            c.Auth.Leeway.String(),
			"sweep_interval":    c.Auth.SweepInterval.String(),
			"sweep_retention":   c.Auth.SweepRetention.String(),
			"lockout_threshold": c.Auth.LockoutThreshold,
			"lockout_duration":  c.Auth.LockoutDuration.String(),
		},
		"database": map[string]any{
			"driver": c.Database.Driver,
			"url":    redactURL(c.Database.URL),
		},
		"http": map[string]any{
			"addr":            c.HTTP.Addr,
			"path_prefix":     c.HTTP.PathPrefix,
			"request_timeout": c.HTTP.RequestTimeout.String(),
			"cors_origins":    c.HTTP.CORSOrigins,
		},
		"metrics": map[string]any{"addr": c.Metrics.Addr},
		"log": map[string]any{
			"format": c.Log.Format,
			"level":  c.Log.Level,
		},
		"tracing": map[string]any{"endpoint": c.Tracing.Endpoint},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, oops.Code("CONFIG_DUMP_FAILED").Wrap(err)
	}
	return out, nil
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
