// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/clock"
)

// Rate limiting configuration.
const (
	// ThrottleThreshold is the number of recorded failures at which an
	// address stops being checked at all.
	ThrottleThreshold = 5

	// ThrottleWindow is how long after the last failure a throttled address
	// becomes eligible for reset.
	ThrottleWindow = 5 * time.Minute

	// AttemptDelay is the induced delay per recorded failure.
	AttemptDelay = time.Second
)

// Admission is the outcome of the rate limit stage for one request.
type Admission struct {
	// Attempts is the failure count the request was admitted with.
	Attempts int

	// Throttled means the request must be rejected without checking credentials.
	Throttled bool

	// Reset means the window elapsed and the record should be cleared.
	Reset bool

	// Delay is the time to suspend before checking credentials.
	Delay time.Duration

	// RetryAfter is the time until a throttled address may try again.
	RetryAfter time.Duration
}

// CheckAttempts evaluates a failed login record at now.
func CheckAttempts(rec LoginAttempts, now time.Time) Admission {
	attempts := rec.Attempts
	if attempts >= ThrottleThreshold {
		elapsed := now.Sub(rec.LastAttempt)
		if elapsed < ThrottleWindow {
			return Admission{
				Attempts:   attempts,
				Throttled:  true,
				RetryAfter: ThrottleWindow - elapsed,
			}
		}
		return Admission{Reset: true}
	}

	if attempts < 0 {
		attempts = 0
	}
	return Admission{
		Attempts: attempts,
		Delay:    time.Duration(attempts) * AttemptDelay,
	}
}

// RateLimiter throttles credential checks per client address.
type RateLimiter struct {
	attempts LoginAttemptRepository
	clock    clock.Clock
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(attempts LoginAttemptRepository, clk clock.Clock) (*RateLimiter, error) {
	if attempts == nil {
		return nil, oops.Errorf("login attempt repository is required")
	}
	if clk == nil {
		return nil, oops.Errorf("clock is required")
	}
	return &RateLimiter{attempts: attempts, clock: clk}, nil
}

// Admit decides whether a login from address may proceed to the credential
// check. Admitted requests are suspended for the induced delay before Admit
// returns; the wait ends early with an error if ctx is done.
func (r *RateLimiter) Admit(ctx context.Context, address string) (Admission, error) {
	rec, err := r.attempts.GetLoginAttempts(ctx, address)
	if err != nil {
		return Admission{}, oops.Code("RATE_LIMIT_FAILED").
			With("operation", "get login attempts").
			With("address", address).
			Wrap(err)
	}

	adm := CheckAttempts(rec, r.clock.Now())
	if adm.Throttled {
		slog.DebugContext(ctx, "login throttled",
			"address", address,
			"attempts", adm.Attempts,
			"retry_after", adm.RetryAfter,
		)
		return adm, nil
	}

	if adm.Reset {
		rec.Attempts = 0
		if err := r.attempts.SetLoginAttempts(ctx, rec); err != nil {
			return Admission{}, oops.Code("RATE_LIMIT_FAILED").
				With("operation", "reset login attempts").
				With("address", address).
				Wrap(err)
		}
	}

	if err := r.wait(ctx, adm.Delay); err != nil {
		return Admission{}, err
	}
	return adm, nil
}

// RecordFailure counts one more failed attempt for address. The count is
// incremented in the store so concurrent failures are never lost.
func (r *RateLimiter) RecordFailure(ctx context.Context, address string) error {
	if _, err := r.attempts.IncrementLoginAttempts(ctx, address, r.clock.Now()); err != nil {
		return oops.Code("RATE_LIMIT_FAILED").
			With("operation", "record failed attempt").
			With("address", address).
			Wrap(err)
	}
	return nil
}

func (r *RateLimiter) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return oops.Code("RATE_LIMIT_WAIT_CANCELLED").
			With("delay", d).
			Wrap(ctx.Err())
	}
}
