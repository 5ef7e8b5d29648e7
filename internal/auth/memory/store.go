// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process credential store for development
// and tests. All data is lost when the process exits.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/auth"
)

type loginRecord struct {
	accountID ulid.ULID
	address   string
	at        time.Time
}

// Store implements auth.Store and auth.LoginAttemptRepository in memory.
// It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]*auth.Account // keyed by normalized username
	usernames   map[ulid.ULID]string
	logins      []loginRecord
	bans        map[string]auth.BanEnd
	memberships map[string]time.Time
	attempts    map[string]auth.LoginAttempts
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:    make(map[string]*auth.Account),
		usernames:   make(map[ulid.ULID]string),
		bans:        make(map[string]auth.BanEnd),
		memberships: make(map[string]time.Time),
		attempts:    make(map[string]auth.LoginAttempts),
	}
}

// copyAccount returns a copy that shares no slices with the stored account.
func copyAccount(a *auth.Account) *auth.Account {
	c := *a
	if a.Profile != nil {
		c.Profile = append(json.RawMessage(nil), a.Profile...)
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// Create stores a new account.
func (s *Store) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := auth.NormalizeUsername(account.Username)
	if _, exists := s.accounts[key]; exists {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("username", account.Username).
			Wrap(auth.ErrDuplicateUsername)
	}
	s.accounts[key] = copyAccount(account)
	s.usernames[account.ID] = key
	return nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (s *Store) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[auth.NormalizeUsername(username)]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return copyAccount(account), nil
}

// UsernameExists reports whether an account has the username.
func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[auth.NormalizeUsername(username)]
	return ok, nil
}

// lookup must be called with mu held.
func (s *Store) lookup(id ulid.ULID) (*auth.Account, error) {
	key, ok := s.usernames[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return s.accounts[key], nil
}

// UpdatePassword updates only the password hash for an account.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.lookup(id)
	if err != nil {
		return err
	}
	account.PasswordHash = passwordHash
	return nil
}

// RecordLogin stores the last login and appends to the login history.
func (s *Store) RecordLogin(_ context.Context, id ulid.ULID, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.lookup(id)
	if err != nil {
		return err
	}
	account.LastLoginAt = &at
	account.LastLoginAddress = address
	s.logins = append(s.logins, loginRecord{accountID: id, address: address, at: at})
	return nil
}

// UpdateProfile updates world-owned account data.
func (s *Store) UpdateProfile(_ context.Context, id ulid.ULID, rank *int, profile json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.lookup(id)
	if err != nil {
		return err
	}
	if rank != nil {
		account.Rank = *rank
	}
	if profile != nil {
		account.Profile = append(json.RawMessage(nil), profile...)
	}
	return nil
}

// Count returns the number of registered accounts.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

// CountAccountsByAddress counts distinct accounts other than exclude seen
// from address.
func (s *Store) CountAccountsByAddress(_ context.Context, address string, exclude ulid.ULID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[ulid.ULID]struct{})
	for _, account := range s.accounts {
		if account.RegistrationAddress == address && account.ID != exclude {
			seen[account.ID] = struct{}{}
		}
	}
	for _, rec := range s.logins {
		if rec.address == address && rec.accountID != exclude {
			seen[rec.accountID] = struct{}{}
		}
	}
	return len(seen), nil
}

// LastRegistrationAt returns the latest registration time from address.
func (s *Store) LastRegistrationAt(_ context.Context, address string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for _, account := range s.accounts {
		if account.RegistrationAddress == address && account.RegisteredAt.After(last) {
			last = account.RegisteredAt
		}
	}
	return last, nil
}

// GetBanEnd returns the ban for username.
func (s *Store) GetBanEnd(_ context.Context, username string) (auth.BanEnd, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bans[auth.NormalizeUsername(username)], nil
}

// SetBanEnd replaces the ban for username.
func (s *Store) SetBanEnd(_ context.Context, username string, end auth.BanEnd) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := auth.NormalizeUsername(username)
	if end.IsZero() {
		delete(s.bans, key)
		return nil
	}
	s.bans[key] = end
	return nil
}

// GetMembershipEnd returns when membership ends for username.
func (s *Store) GetMembershipEnd(_ context.Context, username string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberships[auth.NormalizeUsername(username)], nil
}

// SetMembershipEnd sets when membership ends for username.
func (s *Store) SetMembershipEnd(username string, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[auth.NormalizeUsername(username)] = end
}

// GetLoginAttempts returns the failed login record for address.
func (s *Store) GetLoginAttempts(_ context.Context, address string) (auth.LoginAttempts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.attempts[address]
	if !ok {
		return auth.LoginAttempts{Address: address}, nil
	}
	return rec, nil
}

// SetLoginAttempts replaces the failed login record for its address.
func (s *Store) SetLoginAttempts(_ context.Context, attempts auth.LoginAttempts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempts.Address] = attempts
	return nil
}

// IncrementLoginAttempts adds one failure for address.
func (s *Store) IncrementLoginAttempts(_ context.Context, address string, now time.Time) (auth.LoginAttempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.attempts[address]
	rec.Address = address
	rec.Attempts++
	rec.LastAttempt = now
	s.attempts[address] = rec
	return rec, nil
}

// Compile-time interface checks.
var (
	_ auth.Store                  = (*Store)(nil)
	_ auth.LoginAttemptRepository = (*Store)(nil)
)
