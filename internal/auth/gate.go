// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/clock"
	"github.com/holomush/worldgate/internal/protocol"
)

// DefaultPlayersPerIP is the default per-address account cap.
const DefaultPlayersPerIP = 3

// Verdict is the outcome of the access gate.
type Verdict struct {
	// Allowed is true when every check passed.
	Allowed bool

	// Code is the rejection code when Allowed is false.
	Code protocol.Code

	// RetryPipeline is true when an expired ban was cleared and the login
	// must be replayed from the start.
	RetryPipeline bool
}

func reject(code protocol.Code) Verdict {
	return Verdict{Code: code}
}

// GateRequest holds the inputs of one access gate run.
type GateRequest struct {
	Account     *Account
	Address     string
	MembersOnly bool
}

// AccessGate runs the business checks that follow credential verification.
type AccessGate struct {
	accounts     AccountRepository
	bans         BanRepository
	memberships  MembershipRepository
	presence     PresenceChecker
	clock        clock.Clock
	playersPerIP int
}

// AccessGateConfig configures an AccessGate.
type AccessGateConfig struct {
	Store        Store
	Presence     PresenceChecker
	Clock        clock.Clock
	PlayersPerIP int
}

// NewAccessGate creates an AccessGate.
func NewAccessGate(cfg AccessGateConfig) (*AccessGate, error) {
	if cfg.Store == nil {
		return nil, oops.Errorf("store is required")
	}
	if cfg.Presence == nil {
		return nil, oops.Errorf("presence checker is required")
	}
	if cfg.Clock == nil {
		return nil, oops.Errorf("clock is required")
	}
	playersPerIP := cfg.PlayersPerIP
	if playersPerIP <= 0 {
		playersPerIP = DefaultPlayersPerIP
	}
	return &AccessGate{
		accounts:     cfg.Store,
		bans:         cfg.Store,
		memberships:  cfg.Store,
		presence:     cfg.Presence,
		clock:        cfg.Clock,
		playersPerIP: playersPerIP,
	}, nil
}

// PlayersPerIP returns the configured per-address account cap.
func (g *AccessGate) PlayersPerIP() int {
	return g.playersPerIP
}

// Check runs, in order: duplicate session, per-address cap, ban and
// membership. The first failing check decides the verdict.
func (g *AccessGate) Check(ctx context.Context, req GateRequest) (Verdict, error) {
	username := NormalizeUsername(req.Account.Username)

	if g.presence.Contains(username) {
		return reject(protocol.CodeAlreadyLoggedIn), nil
	}

	overCap, err := g.AddressAtCap(ctx, req.Address, req.Account)
	if err != nil {
		return Verdict{}, err
	}
	if overCap {
		return reject(protocol.CodeTooManyAccounts), nil
	}

	verdict, err := g.checkBan(ctx, username)
	if err != nil || !verdict.Allowed {
		return verdict, err
	}

	if req.MembersOnly {
		end, err := g.memberships.GetMembershipEnd(ctx, username)
		if err != nil {
			return Verdict{}, oops.Code("GATE_FAILED").
				With("operation", "get membership end").
				With("username", username).
				Wrap(err)
		}
		if end.Before(g.clock.Now()) {
			return reject(protocol.CodeMembershipExpired), nil
		}
	}

	return Verdict{Allowed: true}, nil
}

// AddressAtCap reports whether address already has as many other accounts
// as the cap allows. Unlike a raw per-address count, the requester's own
// account is left out, so a player already tied to address is only refused
// once the cap is reached by other accounts. A nil account counts every
// account seen from address.
func (g *AccessGate) AddressAtCap(ctx context.Context, address string, account *Account) (bool, error) {
	var exclude Account
	if account != nil {
		exclude = *account
	}
	count, err := g.accounts.CountAccountsByAddress(ctx, address, exclude.ID)
	if err != nil {
		return false, oops.Code("GATE_FAILED").
			With("operation", "count accounts by address").
			With("address", address).
			Wrap(err)
	}
	return count >= g.playersPerIP, nil
}

func (g *AccessGate) checkBan(ctx context.Context, username string) (Verdict, error) {
	ban, err := g.bans.GetBanEnd(ctx, username)
	if err != nil {
		return Verdict{}, oops.Code("GATE_FAILED").
			With("operation", "get ban end").
			With("username", username).
			Wrap(err)
	}

	switch {
	case ban.IsZero():
		return Verdict{Allowed: true}, nil
	case ban.IsPermanent():
		return reject(protocol.CodePermanentlyBanned), nil
	case ban.ActiveAt(g.clock.Now()):
		return reject(protocol.CodeTemporarilyBanned), nil
	}

	if err := g.bans.SetBanEnd(ctx, username, BanEnd{}); err != nil {
		return Verdict{}, oops.Code("GATE_FAILED").
			With("operation", "clear expired ban").
			With("username", username).
			Wrap(err)
	}
	slog.InfoContext(ctx, "expired ban cleared",
		"username", username,
		"ban_end", ban.Until(),
	)
	return Verdict{RetryPipeline: true}, nil
}
