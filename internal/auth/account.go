// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Account is a player account.
type Account struct {
	ID                  ulid.ULID
	Username            string
	PasswordHash        string
	Rank                int
	Profile             json.RawMessage
	RegistrationAddress string
	RegisteredAt        time.Time
	LastLoginAt         *time.Time
	LastLoginAddress    string
}

// NewAccount creates a validated Account registered from address at now.
func NewAccount(username, passwordHash, address string, now time.Time) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}

	return &Account{
		ID:                  ulid.Make(),
		Username:            username,
		PasswordHash:        passwordHash,
		RegistrationAddress: address,
		RegisteredAt:        now,
	}, nil
}

// HashCost returns the bcrypt cost embedded in the stored hash, or 0 if the
// hash cannot be parsed.
func (a *Account) HashCost() int {
	cost, err := bcrypt.Cost([]byte(a.PasswordHash))
	if err != nil {
		return 0
	}
	return cost
}

// IsElevated reports whether the account has staff rank.
func (a *Account) IsElevated() bool {
	return a.Rank > 0
}

// NormalizeUsername returns the lookup key for a username. Usernames are
// unique regardless of case.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}
