// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

package config

import (
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":        "http.addr",
	"http-path-prefix": "http.path_prefix",
	"metrics-addr":     "metrics.addr",
	"database-driver":  "database.driver",
	"database-url":     "database.url",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"tracing-endpoint": "tracing.endpoint",
}

// BindFlags registers the flags that override configuration keys. Flag
// defaults are empty; only flags set on the command line take effect.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "API listen address (default 0.0.0.0:8080)")
	fs.String("http-path-prefix", "", "path prefix for every API route, e.g. /api/v1")
	fs.String("metrics-addr", "", "metrics/health HTTP address (default 127.0.0.1:9100)")
	fs.String("database-driver", "", "database driver: postgres or sqlite")
	fs.String("database-url", "", "database connection URL or SQLite file path")
	fs.String("log-format", "", "log format: json or text")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("tracing-endpoint", "", "OTLP/HTTP traces endpoint URL (empty disables tracing)")
}

func flagValue(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
