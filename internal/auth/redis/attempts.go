// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis keeps per-address failed login records in Redis so several
// gateway processes share one throttle.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/worldgate/internal/auth"
)

// DefaultKeyPrefix namespaces attempt records.
const DefaultKeyPrefix = "worldgate:attempts:"

// connectRetries bounds the pings New tries after the first.
const connectRetries = 3

const (
	fieldAttempts    = "attempts"
	fieldLastAttempt = "last_attempt"
)

// Config configures an AttemptStore.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// KeyPrefix is prepended to the address to form the key.
	KeyPrefix string

	// TTL expires idle records. Zero keeps them until overwritten.
	TTL time.Duration
}

// AttemptStore implements auth.LoginAttemptRepository.
type AttemptStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and waits for the server to answer a ping.
func New(ctx context.Context, cfg Config) (*AttemptStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, oops.Code("ATTEMPTS_CONFIG_INVALID").
			With("operation", "parse redis url").
			Wrap(err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	backoff := retry.WithMaxRetries(connectRetries, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(pingCtx, backoff, func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("ATTEMPTS_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config) *AttemptStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &AttemptStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

// Close closes the Redis connection.
func (s *AttemptStore) Close() error {
	return s.client.Close() //nolint:wrapcheck // close error needs no context
}

// Ping checks the connection.
func (s *AttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err() //nolint:wrapcheck // used by readiness checks
}

func (s *AttemptStore) key(address string) string {
	return s.prefix + address
}

// GetLoginAttempts returns the record for address.
func (s *AttemptStore) GetLoginAttempts(ctx context.Context, address string) (auth.LoginAttempts, error) {
	fields, err := s.client.HGetAll(ctx, s.key(address)).Result()
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_GET_FAILED").
			With("address", address).
			Wrap(err)
	}

	rec := auth.LoginAttempts{Address: address}
	if len(fields) == 0 {
		return rec, nil
	}

	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_CORRUPT").
			With("address", address).
			With("field", fieldAttempts).
			Wrap(err)
	}
	lastMillis, err := strconv.ParseInt(fields[fieldLastAttempt], 10, 64)
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_CORRUPT").
			With("address", address).
			With("field", fieldLastAttempt).
			Wrap(err)
	}

	rec.Attempts = attempts
	rec.LastAttempt = time.UnixMilli(lastMillis).UTC()
	return rec, nil
}

// SetLoginAttempts replaces the record for its address.
func (s *AttemptStore) SetLoginAttempts(ctx context.Context, attempts auth.LoginAttempts) error {
	key := s.key(attempts.Address)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldAttempts, attempts.Attempts,
			fieldLastAttempt, attempts.LastAttempt.UnixMilli(),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return oops.Code("ATTEMPTS_SET_FAILED").
			With("address", attempts.Address).
			Wrap(err)
	}
	return nil
}

// IncrementLoginAttempts adds one failure for address inside a MULTI block.
func (s *AttemptStore) IncrementLoginAttempts(ctx context.Context, address string, now time.Time) (auth.LoginAttempts, error) {
	key := s.key(address)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldAttempts, 1)
		pipe.HSet(ctx, key, fieldLastAttempt, now.UnixMilli())
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_INCREMENT_FAILED").
			With("address", address).
			Wrap(err)
	}
	return auth.LoginAttempts{
		Address:     address,
		Attempts:    int(incr.Val()),
		LastAttempt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

var _ auth.LoginAttemptRepository = (*AttemptStore)(nil)
