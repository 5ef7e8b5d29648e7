// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package clock abstracts time so pipelines with windows and delays can be
// tested without sleeping.
package clock

import "time"

// Clock provides the current time and timers.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real implements Clock using the system clock.
type Real struct{}

// New returns the system clock.
func New() Real {
	return Real{}
}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// After waits for d on a runtime timer.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
