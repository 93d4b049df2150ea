// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Package config loads MealMind configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, the legacy environment variables (JWT_SECRET, DATABASE_URL, ...),
// MEALMIND_* environment variables, and finally command-line flags.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/mealmind/mealmind/internal/auth"
	"github.com/mealmind/mealmind/internal/store"
	"github.com/mealmind/mealmind/internal/token"
)

// EnvPrefix is the prefix of MealMind environment variables. The first
// underscore after the section name separates it from the key, so
// MEALMIND_AUTH_JWT_SECRET sets auth.jwt_secret.
const EnvPrefix = "MEALMIND_"

// DefaultSQLitePath is used when the sqlite driver is selected without a URL.
const DefaultSQLitePath = "mealmind.db"

// Config is the effective MealMind configuration.
type Config struct {
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Tracing  TracingConfig  `koanf:"tracing"`
}

// AuthConfig configures tokens and refresh sessions.
type AuthConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	Issuer         string        `koanf:"issuer"`
	Audience       string        `koanf:"audience"`
	AccessTTL      time.Duration `koanf:"access_ttl"`
	RefreshTTL     time.Duration `koanf:"refresh_ttl"`
	Leeway         time.Duration `koanf:"leeway"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
	SweepRetention time.Duration `koanf:"sweep_retention"`

	// LockoutThreshold is the failed logins per email that trigger a
	// lockout. Zero disables login throttling.
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutDuration  time.Duration `koanf:"lockout_duration"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite". Empty infers it from URL.
	Driver string `koanf:"driver"`
	URL    string `koanf:"url"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	PathPrefix     string        `koanf:"path_prefix"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	CORSOrigins    []string      `koanf:"cors_origins"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// TracingConfig configures OTLP trace export. An empty Endpoint disables it.
type TracingConfig struct {
	Endpoint string `koanf:"endpoint"`
}

var defaults = map[string]any{
	"auth.issuer":            "mealmind",
	"auth.audience":          "mealmind-users",
	"auth.access_ttl":        "60m",
	"auth.refresh_ttl":       "20160m",
	"auth.leeway":            token.DefaultLeeway.String(),
	"auth.sweep_interval":    "1h",
	"auth.sweep_retention":   "24h",
	"auth.lockout_threshold": auth.DefaultLockoutThreshold,
	"auth.lockout_duration":  auth.DefaultLockoutDuration.String(),
	"database.driver":        "",
	"database.url":           "",
	"http.addr":              "0.0.0.0:8080",
	"http.path_prefix":       "",
	"http.request_timeout":   "10s",
	"http.cors_origins":      []string{"*"},
	"metrics.addr":           "127.0.0.1:9100",
	"log.format":             "json",
	"log.level":              "info",
	"tracing.endpoint":       "",
}

// legacyEnv maps environment variable names used by earlier deployments to
// configuration keys. Empty variables are ignored, here and for MEALMIND_*.
var legacyEnv = map[string]string{
	"JWT_SECRET":              "auth.jwt_secret",
	"JWT_ISSUER":              "auth.issuer",
	"JWT_AUDIENCE":            "auth.audience",
	"JWT_TTL_MINUTES":         "auth.access_ttl",
	"JWT_REFRESH_TTL_MINUTES": "auth.refresh_ttl",
	"DATABASE_URL":            "database.url",
	"LOG_FORMAT":              "log.format",
	"APP_HOST":                "legacy.app_host",
	"APP_PORT":                "legacy.app_port",
}

// Load builds the configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k, err := load(path, flags)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, flags *pflag.FlagSet) (*koanf.Koanf, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyValue), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").With("source", "legacy").Wrap(err)
	}
	if err := applyLegacyAddr(k); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").With("source", EnvPrefix).Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagValue(flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}
	return k, nil
}

func legacyValue(name, value string) (string, any) {
	key, ok := legacyEnv[name]
	if !ok || value == "" {
		return "", nil
	}
	if strings.HasSuffix(name, "_MINUTES") {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return key, strconv.Itoa(n) + "m"
		}
	}
	return key, value
}

// applyLegacyAddr folds APP_HOST and APP_PORT into http.addr.
func applyLegacyAddr(k *koanf.Koanf) error {
	host, port := k.String("legacy.app_host"), k.String("legacy.app_port")
	k.Delete("legacy")
	if host == "" && port == "" {
		return nil
	}

	defHost, defPort, _ := strings.Cut(k.String("http.addr"), ":")
	if host == "" {
		host = defHost
	}
	if port == "" {
		port = defPort
	}
	if err := k.Set("http.addr", host+":"+port); err != nil {
		return oops.Code("CONFIG_ENV_FAILED").With("key", "http.addr").Wrap(err)
	}
	return nil
}

func envValue(name, value string) (string, any) {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(rest, "_")
	if !ok || field == "" || value == "" {
		return "", nil
	}
	key := section + "." + field
	if key == "http.cors_origins" {
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalize fills values derived from other settings.
func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = inferDriver(c.Database.URL)
	}
	if c.Database.Driver == string(store.DialectSQLite) && c.Database.URL == "" {
		c.Database.URL = DefaultSQLitePath
	}
	c.HTTP.PathPrefix = strings.TrimRight(c.HTTP.PathPrefix, "/")
	if c.HTTP.PathPrefix != "" && !strings.HasPrefix(c.HTTP.PathPrefix, "/") {
		c.HTTP.PathPrefix = "/" + c.HTTP.PathPrefix
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

func inferDriver(url string) string {
	for _, scheme := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if strings.HasPrefix(url, scheme) {
			return string(store.DialectPostgres)
		}
	}
	return string(store.DialectSQLite)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(key, format string, args ...any) {
		errs = append(errs, oops.With("key", key).Errorf(format, args...))
	}

	switch {
	case c.Auth.JWTSecret == "":
		fail("auth.jwt_secret", "auth.jwt_secret is required")
	case len(c.Auth.JWTSecret) < token.MinSecretLength:
		fail("auth.jwt_secret", "auth.jwt_secret must be at least %d bytes", token.MinSecretLength)
	}
	if c.Auth.Issuer == "" {
		fail("auth.issuer", "auth.issuer is required")
	}
	if c.Auth.Audience == "" {
		fail("auth.audience", "auth.audience is required")
	}
	for key, d := range map[string]time.Duration{
		"auth.access_ttl":      c.Auth.AccessTTL,
		"auth.refresh_ttl":     c.Auth.RefreshTTL,
		"auth.sweep_interval":  c.Auth.SweepInterval,
		"http.request_timeout": c.HTTP.RequestTimeout,
	} {
		if d <= 0 {
			fail(key, "%s must be positive, got %s", key, d)
		}
	}
	if c.Auth.Leeway < 0 {
		fail("auth.leeway", "auth.leeway must not be negative")
	}
	if c.Auth.SweepRetention < 0 {
		fail("auth.sweep_retention", "auth.sweep_retention must not be negative")
	}
	if c.Auth.LockoutThreshold < 0 {
		fail("auth.lockout_threshold", "auth.lockout_threshold must not be negative")
	}
	if c.Auth.LockoutThreshold > 0 && c.Auth.LockoutDuration <= 0 {
		fail("auth.lockout_duration", "auth.lockout_duration must be positive when throttling is enabled, got %s", c.Auth.LockoutDuration)
	}

	if _, err := store.ParseDialect(c.Database.Driver); err != nil {
		fail("database.driver", "database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == string(store.DialectPostgres) && c.Database.URL == "" {
		fail("database.url", "database.url is required for postgres")
	}

	if c.HTTP.Addr == "" {
		fail("http.addr", "http.addr is required")
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		fail("http.cors_origins", "http.cors_origins must list at least one pattern")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		fail("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		fail("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").
		With("problems", len(errs)).
		Wrap(errors.Join(errs...))
}
