// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	// Returns ErrDuplicateUsername if the username is taken (case-insensitive).
	Create(ctx context.Context, account *Account) error

	// GetByUsername retrieves an account by username (case-insensitive).
	// Returns ErrNotFound if no account has the given username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// UsernameExists reports whether an account has the username (case-insensitive).
	UsernameExists(ctx context.Context, username string) (bool, error)

	// UpdatePassword updates only the password hash for an account.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// RecordLogin stores the last login time and address and appends a
	// login history record.
	RecordLogin(ctx context.Context, id ulid.ULID, address string, at time.Time) error

	// UpdateProfile updates world-owned account data. Nil values are left unchanged.
	UpdateProfile(ctx context.Context, id ulid.ULID, rank *int, profile json.RawMessage) error

	// Count returns the number of registered accounts.
	Count(ctx context.Context) (int64, error)

	// CountAccountsByAddress returns the number of distinct accounts, other
	// than exclude, that registered from or logged in from address.
	CountAccountsByAddress(ctx context.Context, address string, exclude ulid.ULID) (int, error)

	// LastRegistrationAt returns when the most recent account was registered
	// from address. It is zero when none was.
	LastRegistrationAt(ctx context.Context, address string) (time.Time, error)
}

// LoginAttempts is the failed login record of a client address.
type LoginAttempts struct {
	Address     string
	Attempts    int
	LastAttempt time.Time
}

// LoginAttemptRepository manages per-address failed login records.
type LoginAttemptRepository interface {
	// GetLoginAttempts returns the record for address, or a zero record with
	// Address set when none exists.
	GetLoginAttempts(ctx context.Context, address string) (LoginAttempts, error)

	// SetLoginAttempts replaces the record for its address.
	SetLoginAttempts(ctx context.Context, attempts LoginAttempts) error

	// IncrementLoginAttempts atomically adds one failure for address, stamps
	// it with now, and returns the updated record.
	IncrementLoginAttempts(ctx context.Context, address string, now time.Time) (LoginAttempts, error)
}

// BanRepository manages account bans.
type BanRepository interface {
	// GetBanEnd returns the ban for username. Unknown usernames are not banned.
	GetBanEnd(ctx context.Context, username string) (BanEnd, error)

	// SetBanEnd replaces the ban for username. The zero BanEnd clears it.
	SetBanEnd(ctx context.Context, username string, end BanEnd) error
}

// MembershipRepository reads membership expiry.
type MembershipRepository interface {
	// GetMembershipEnd returns when membership ends for username. It is zero
	// for accounts that never had membership.
	GetMembershipEnd(ctx context.Context, username string) (time.Time, error)
}

// Store is the full credential store consumed by the gateway.
type Store interface {
	AccountRepository
	BanRepository
	MembershipRepository
}

// PresenceChecker reports whether a username is online in any world.
type PresenceChecker interface {
	Contains(username string) bool
}
