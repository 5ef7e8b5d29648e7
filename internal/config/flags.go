// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import "github.com/spf13/pflag"

// RegisterFlags defines the command line overrides. Defaults match
// Default so unset flags never change file values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String("listen-addr", d.ListenAddr, "link server listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("control-addr", d.ControlAddr, "gRPC health address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.Duration("request-timeout", d.RequestTimeout, "time limit for one request")
	fs.Int("password-hash-cost", d.PasswordHashCost, "bcrypt cost for new and upgraded hashes")
	fs.Int("players-per-ip", d.PlayersPerIP, "accounts allowed per client address")
	fs.String("store.driver", d.Store.Driver, "credential store (postgres or memory)")
	fs.String("store.database-url", d.Store.DatabaseURL, "PostgreSQL connection URL")
	fs.String("attempts.driver", d.Attempts.Driver, "failed login store (store or redis)")
	fs.String("attempts.redis-url", d.Attempts.RedisURL, "Redis URL for failed login attempts")
	fs.String("links.secret", d.Links.Secret, "HS256 secret for link tokens (empty = disabled)")
}
