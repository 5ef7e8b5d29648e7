// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/presence"
	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/relay"
)

// maxLoginPasses bounds the replay after an expired ban is cleared.
const maxLoginPasses = 2

// passResult is the outcome of one run of the login stages.
type passResult struct {
	code    protocol.Code
	account *auth.Account
	retry   bool
}

// Login admits a player into the requesting world.
func (c *Coordinator) Login(ctx context.Context, req Request, in protocol.LoginRequest) (resp protocol.LoginResponse, err error) {
	username := auth.NormalizeUsername(in.Username)
	ctx, finish := c.startSpan(ctx, "login", req, attribute.String("username", username))
	defer func() { finish(err) }()

	resp = protocol.LoginResponse{Token: in.Token}

	if req.World == nil {
		slog.WarnContext(ctx, "login before connecting to a world",
			"link_id", req.LinkID,
			"username", username,
		)
		resp.Code = protocol.CodeNotConnectedToWorld
		recordLogin(resp.Code)
		return resp, nil
	}

	for pass := 1; pass <= maxLoginPasses; pass++ {
		result, err := c.loginPass(ctx, req, in, username, pass)
		if err != nil {
			return resp, oops.Code("LOGIN_FAILED").
				With("username", username).
				With("world_id", req.World.ID).
				With("pass", pass).
				Wrap(err)
		}
		if result.retry {
			continue
		}

		resp.Code = result.code
		recordLogin(resp.Code)
		if !resp.Code.IsLoginSuccess() {
			slog.DebugContext(ctx, "login rejected",
				"username", username,
				"address", in.Address,
				"world_id", req.World.ID,
				"code", resp.Code.LoginName(),
			)
			return resp, nil
		}

		resp.Success = true
		resp.Player = playerView(result.account)
		onlinePlayers.Set(float64(c.presence.Online()))
		c.router.Broadcast(ctx, relay.LoggedIn(username))

		slog.InfoContext(ctx, "player logged in",
			"username", username,
			"address", in.Address,
			"world_id", req.World.ID,
			"code", resp.Code.LoginName(),
		)
		return resp, nil
	}

	return resp, oops.Code("LOGIN_FAILED").
		With("username", username).
		With("world_id", req.World.ID).
		Errorf("ban still present after clearing it")
}

// loginPass runs rate limit, credentials, access gate, presence join and
// login record once. Only the first pass is rate limited; the replay after a
// cleared ban reuses its admission so the induced delay is served once.
func (c *Coordinator) loginPass(ctx context.Context, req Request, in protocol.LoginRequest, username string, pass int) (passResult, error) {
	if pass == 1 {
		adm, err := c.limiter.Admit(ctx, in.Address)
		if err != nil {
			return passResult{}, err
		}
		if adm.Throttled {
			return passResult{code: protocol.CodeThrottled}, nil
		}
	}

	verification, err := c.verifier.Verify(ctx, username, in.Password)
	if err != nil {
		return passResult{}, err
	}
	if !verification.Valid {
		if err := c.limiter.RecordFailure(ctx, in.Address); err != nil {
			return passResult{}, err
		}
		return passResult{code: protocol.CodeInvalidCredentials}, nil
	}
	account := verification.Account

	verdict, err := c.gate.Check(ctx, auth.GateRequest{
		Account:     account,
		Address:     in.Address,
		MembersOnly: req.World.Members,
	})
	if err != nil {
		return passResult{}, err
	}
	if verdict.RetryPipeline {
		return passResult{retry: true}, nil
	}
	if !verdict.Allowed {
		return passResult{code: verdict.Code}, nil
	}

	if err := c.presence.Join(req.World.ID, username, account.ID); err != nil {
		if errors.Is(err, presence.ErrAlreadyOnline) {
			return passResult{code: protocol.CodeAlreadyLoggedIn}, nil
		}
		return passResult{}, oops.With("operation", "join presence").Wrap(err)
	}

	if err := c.store.RecordLogin(ctx, account.ID, in.Address, c.clock.Now()); err != nil {
		c.presence.Leave(req.World.ID, username)
		return passResult{}, oops.With("operation", "record login").Wrap(err)
	}

	code := protocol.CodeLoginSuccess
	switch {
	case in.Reconnecting:
		code = protocol.CodeReconnectSuccess
	case account.IsElevated():
		code = protocol.CodeElevatedLoginSuccess
	}
	return passResult{code: code, account: account}, nil
}

// playerView is the account as sent to worlds.
func playerView(a *auth.Account) *protocol.Player {
	return &protocol.Player{
		ID:               a.ID.String(),
		Username:         a.Username,
		Rank:             a.Rank,
		Profile:          a.Profile,
		RegisteredAt:     a.RegisteredAt,
		LastLoginAt:      a.LastLoginAt,
		LastLoginAddress: a.LastLoginAddress,
	}
}
