// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package clocktest provides a manually driven Clock for tests.
package clocktest

import (
	"sync"
	"time"

	"github.com/holomush/worldgate/internal/clock"
)

// Clock is a fake clock. Timers fire immediately and advance the clock by
// their duration, so a pipeline that waits observes time passing.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	waits   []time.Duration
	blocked bool
}

var _ clock.Clock = (*Clock)(nil)

// New creates a Clock set to t.
func New(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the fake current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After records d and returns a channel that has already fired, unless the
// clock was told to Block.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if c.blocked {
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Block makes subsequent timers never fire.
func (c *Clock) Block() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = true
}

// Waits returns the durations requested through After, in order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}
