// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the credential store on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/auth"
)

// Querier is the subset of pgxpool.Pool used by Store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements auth.Store and auth.LoginAttemptRepository.
type Store struct {
	db Querier
}

// NewStore creates a Store.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// permanentBanMillis is the stored value of an indefinite ban.
const permanentBanMillis int64 = -1

func encodeBanEnd(b auth.BanEnd) int64 {
	switch {
	case b.IsPermanent():
		return permanentBanMillis
	case b.IsZero():
		return 0
	}
	return b.Until().UnixMilli()
}

func decodeBanEnd(ms int64) auth.BanEnd {
	switch {
	case ms == permanentBanMillis:
		return auth.PermanentBan
	case ms <= 0:
		return auth.BanEnd{}
	}
	return auth.BanUntil(time.UnixMilli(ms).UTC())
}

func notFound(key string, value any) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Create stores a new account.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	profile := account.Profile
	if len(profile) == 0 {
		profile = json.RawMessage(`{}`)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (
			id, username, password_hash, rank, profile,
			registration_address, registered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.Username,
		account.PasswordHash,
		account.Rank,
		string(profile),
		account.RegistrationAddress,
		account.RegisteredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("username", account.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (s *Store) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, username, password_hash, rank, profile,
		       registration_address, registered_at,
		       last_login_at, last_login_address
		FROM accounts
		WHERE LOWER(username) = LOWER($1)
	`, username)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("username", username)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return account, nil
}

// scanAccount passes pgx.ErrNoRows through unwrapped.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr   string
		profile []byte
		account auth.Account
	)
	err := row.Scan(
		&idStr,
		&account.Username,
		&account.PasswordHash,
		&account.Rank,
		&profile,
		&account.RegistrationAddress,
		&account.RegisteredAt,
		&account.LastLoginAt,
		&account.LastLoginAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	account.ID = id
	if len(profile) > 0 {
		account.Profile = json.RawMessage(profile)
	}
	return &account, nil
}

// UsernameExists reports whether an account has the username.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE LOWER(username) = LOWER($1))`,
		username).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "check username").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// UpdatePassword updates only the password hash for an account.
func (s *Store) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`,
		id.String(), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// RecordLogin stores the last login and appends to the login history in one
// statement.
func (s *Store) RecordLogin(ctx context.Context, id ulid.ULID, address string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		WITH updated AS (
			UPDATE accounts SET last_login_at = $3, last_login_address = $2
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO login_history (account_id, address, logged_in_at)
		SELECT id, $2, $3 FROM updated
	`, id.String(), address, at)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "record login").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// UpdateProfile updates world-owned account data. Nil values are kept.
func (s *Store) UpdateProfile(ctx context.Context, id ulid.ULID, rank *int, profile json.RawMessage) error {
	var profileArg *string
	if profile != nil {
		p := string(profile)
		profileArg = &p
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET
			rank = COALESCE($2, rank),
			profile = COALESCE($3::jsonb, profile)
		WHERE id = $1
	`, id.String(), rank, profileArg)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// Count returns the number of registered accounts.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, oops.Code("ACCOUNT_COUNT_FAILED").With("operation", "count accounts").Wrap(err)
	}
	return count, nil
}

// CountAccountsByAddress counts distinct accounts other than exclude that
// registered or logged in from address.
func (s *Store) CountAccountsByAddress(ctx context.Context, address string, exclude ulid.ULID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT id FROM accounts WHERE registration_address = $1
			UNION
			SELECT account_id FROM login_history WHERE address = $1
		) seen
		WHERE id <> $2
	`, address, exclude.String()).Scan(&count)
	if err != nil {
		return 0, oops.Code("ACCOUNT_COUNT_FAILED").
			With("operation", "count accounts by address").
			With("address", address).
			Wrap(err)
	}
	return count, nil
}

// LastRegistrationAt returns the latest registration time from address.
func (s *Store) LastRegistrationAt(ctx context.Context, address string) (time.Time, error) {
	var last *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT MAX(registered_at) FROM accounts WHERE registration_address = $1`,
		address).Scan(&last)
	if err != nil {
		return time.Time{}, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "last registration").
			With("address", address).
			Wrap(err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// GetBanEnd returns the ban for username.
func (s *Store) GetBanEnd(ctx context.Context, username string) (auth.BanEnd, error) {
	var ms int64
	err := s.db.QueryRow(ctx,
		`SELECT ban_end FROM accounts WHERE LOWER(username) = LOWER($1)`,
		username).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.BanEnd{}, nil
	}
	if err != nil {
		return auth.BanEnd{}, oops.Code("BAN_GET_FAILED").
			With("username", username).
			Wrap(err)
	}
	return decodeBanEnd(ms), nil
}

// SetBanEnd replaces the ban for username.
func (s *Store) SetBanEnd(ctx context.Context, username string, end auth.BanEnd) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET ban_end = $2 WHERE LOWER(username) = LOWER($1)`,
		username, encodeBanEnd(end))
	if err != nil {
		return oops.Code("BAN_SET_FAILED").
			With("username", username).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("username", username)
	}
	return nil
}

// GetMembershipEnd returns when membership ends for username.
func (s *Store) GetMembershipEnd(ctx context.Context, username string) (time.Time, error) {
	var end *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT membership_end FROM accounts WHERE LOWER(username) = LOWER($1)`,
		username).Scan(&end)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && end == nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, oops.Code("MEMBERSHIP_GET_FAILED").
			With("username", username).
			Wrap(err)
	}
	return *end, nil
}

// GetLoginAttempts returns the failed login record for address.
func (s *Store) GetLoginAttempts(ctx context.Context, address string) (auth.LoginAttempts, error) {
	rec := auth.LoginAttempts{Address: address}
	err := s.db.QueryRow(ctx,
		`SELECT attempts, last_attempt FROM login_attempts WHERE address = $1`,
		address).Scan(&rec.Attempts, &rec.LastAttempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LoginAttempts{Address: address}, nil
	}
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_GET_FAILED").
			With("address", address).
			Wrap(err)
	}
	return rec, nil
}

// SetLoginAttempts replaces the failed login record for its address.
func (s *Store) SetLoginAttempts(ctx context.Context, attempts auth.LoginAttempts) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO login_attempts (address, attempts, last_attempt)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET attempts = $2, last_attempt = $3
	`, attempts.Address, attempts.Attempts, attempts.LastAttempt)
	if err != nil {
		return oops.Code("ATTEMPTS_SET_FAILED").
			With("address", attempts.Address).
			Wrap(err)
	}
	return nil
}

// IncrementLoginAttempts adds one failure for address in a single statement.
func (s *Store) IncrementLoginAttempts(ctx context.Context, address string, now time.Time) (auth.LoginAttempts, error) {
	rec := auth.LoginAttempts{Address: address, LastAttempt: now}
	err := s.db.QueryRow(ctx, `
		INSERT INTO login_attempts (address, attempts, last_attempt)
		VALUES ($1, 1, $2)
		ON CONFLICT (address) DO UPDATE
		SET attempts = login_attempts.attempts + 1, last_attempt = $2
		RETURNING attempts
	`, address, now).Scan(&rec.Attempts)
	if err != nil {
		return auth.LoginAttempts{}, oops.Code("ATTEMPTS_INCREMENT_FAILED").
			With("address", address).
			Wrap(err)
	}
	return rec, nil
}

// Compile-time interface checks.
var (
	_ auth.Store                  = (*Store)(nil)
	_ auth.LoginAttemptRepository = (*Store)(nil)
)
