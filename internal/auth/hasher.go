// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = bcrypt.DefaultCost

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// ErrPasswordTooLong is returned when a password exceeds the bcrypt input limit.
var ErrPasswordTooLong = oops.Code("AUTH_PASSWORD_TOO_LONG").Errorf("password cannot exceed %d bytes", maxPasswordBytes)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a hash of the password at the configured cost.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced below the configured cost.
	NeedsUpgrade(hash string) bool

	// DummyHash returns a hash that matches no password, used to keep the
	// response time of unknown usernames close to that of known ones.
	DummyHash() string
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewBcryptHasher creates a BcryptHasher hashing at cost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_INVALID_HASH_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the target cost.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("cost", h.cost).Wrap(err)
	}
	return string(hash), nil
}

// Verify checks if the password matches the hash in constant time.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	if len(password) > maxPasswordBytes {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
}

// NeedsUpgrade returns true if the hash cost is below the target cost or
// cannot be read.
func (h *BcryptHasher) NeedsUpgrade(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// DummyHash returns a hash of a random secret at the target cost.
func (h *BcryptHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		secret := make([]byte, 32)
		_, _ = rand.Read(secret) //nolint:errcheck // crypto/rand.Read never returns an error
		hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), h.cost)
		if err == nil {
			h.dummy = string(hash)
		}
	})
	return h.dummy
}

var _ PasswordHasher = (*BcryptHasher)(nil)
