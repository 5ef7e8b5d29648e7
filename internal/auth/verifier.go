// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/worldgate/pkg/errutil"
)

// Verification is the outcome of a credential check.
type Verification struct {
	// Account is set when Valid is true.
	Account *Account

	// Valid is true when the account exists and the password matched.
	Valid bool

	// Rehashed is true when the stored hash was upgraded to the target cost.
	Rehashed bool
}

// CredentialVerifier checks passwords against stored hashes.
type CredentialVerifier struct {
	accounts AccountRepository
	hasher   PasswordHasher
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(accounts AccountRepository, hasher PasswordHasher) (*CredentialVerifier, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &CredentialVerifier{accounts: accounts, hasher: hasher}, nil
}

// Verify checks password for username. Unknown usernames and wrong passwords
// both yield Valid false; the password is compared either way so the two
// cases take similar time.
//
// When the password matches a hash below the target cost, the hash is
// recomputed and stored before Verify returns. A failed upgrade is logged and
// does not fail the login.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (Verification, error) {
	account, lookupErr := v.accounts.GetByUsername(ctx, username)

	var targetHash string
	exists := true
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return Verification{}, oops.Code("VERIFY_FAILED").
				With("operation", "get account by username").
				With("username", username).
				Wrap(lookupErr)
		}
		exists = false
		targetHash = v.hasher.DummyHash()
	} else {
		targetHash = account.PasswordHash
	}

	valid, verifyErr := v.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return Verification{}, nil
		}
		return Verification{}, oops.Code("VERIFY_FAILED").
			With("operation", "verify password").
			With("username", username).
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return Verification{}, nil
	}

	result := Verification{Account: account, Valid: true}
	if v.hasher.NeedsUpgrade(account.PasswordHash) {
		result.Rehashed = v.upgrade(ctx, account, password)
	}
	return result, nil
}

func (v *CredentialVerifier) upgrade(ctx context.Context, account *Account, password string) bool {
	fromCost := account.HashCost()

	newHash, err := v.hasher.Hash(password)
	if err != nil {
		errutil.LogError(slog.Default(), "password rehash failed", err)
		return false
	}
	if err := v.accounts.UpdatePassword(ctx, account.ID, newHash); err != nil {
		errutil.LogError(slog.Default(), "password rehash not persisted", err)
		return false
	}

	account.PasswordHash = newHash
	slog.DebugContext(ctx, "password rehashed",
		"username", account.Username,
		"from_cost", fromCost,
		"to_cost", account.HashCost(),
	)
	return true
}
