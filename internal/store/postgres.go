// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection and schema used by the
// credential store.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
	maxConnectBackoff      = 5 * time.Second
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Attempts is the number of pings tried before giving up.
	Attempts uint64

	// Backoff is the first retry delay. Later delays double up to 5s.
	Backoff time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Attempts == 0 {
		o.Attempts = DefaultConnectAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultConnectBackoff
	}
	return o
}

// Connect opens a pgx pool for databaseURL and waits until the server
// answers a ping, retrying with exponential backoff.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "create pool").
			Wrap(err)
	}

	opts = opts.withDefaults()
	backoff := retry.WithMaxRetries(opts.Attempts-1,
		retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(opts.Backoff)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"error", pingErr,
			)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	slog.InfoContext(ctx, "database connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
	)
	return pool, nil
}
