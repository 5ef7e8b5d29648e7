// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/relay"
)

// Logout removes a player from the requesting world. There is no reply;
// worlds learn of it through the playerLoggedOut broadcast.
func (c *Coordinator) Logout(ctx context.Context, req Request, in protocol.LogoutRequest) {
	if req.World == nil {
		return
	}
	username := auth.NormalizeUsername(in.Username)
	if !c.presence.Leave(req.World.ID, username) {
		slog.DebugContext(ctx, "logout for player not in world",
			"username", username,
			"world_id", req.World.ID,
		)
		return
	}
	onlinePlayers.Set(float64(c.presence.Online()))

	ev := relay.LoggedOut(username)
	ev.Token = in.Token
	c.router.Broadcast(ctx, ev)

	slog.InfoContext(ctx, "player logged out",
		"username", username,
		"world_id", req.World.ID,
	)
}

// Message relays a payload to another world.
func (c *Coordinator) Message(ctx context.Context, _ Request, in protocol.MessageRequest) protocol.StatusResponse {
	return c.router.Route(ctx, in)
}

// PlayerCount returns the number of registered accounts.
func (c *Coordinator) PlayerCount(ctx context.Context, _ Request, in protocol.CountRequest) (protocol.CountResponse, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return protocol.CountResponse{Token: in.Token}, oops.Code("PLAYER_COUNT_FAILED").Wrap(err)
	}
	return protocol.CountResponse{Token: in.Token, Count: n}, nil
}

// OnlineCount returns the number of players online across all worlds.
func (c *Coordinator) OnlineCount(_ context.Context, _ Request, in protocol.CountRequest) protocol.CountResponse {
	return protocol.CountResponse{Token: in.Token, Count: int64(c.presence.Online())}
}

// GetWorlds maps each username to the world it is online in.
func (c *Coordinator) GetWorlds(_ context.Context, _ Request, in protocol.GetWorldsRequest) protocol.GetWorldsResponse {
	worlds := make(map[string]int, len(in.Usernames))
	for _, username := range in.Usernames {
		worlds[username] = c.presence.WorldOf(username)
	}
	return protocol.GetWorldsResponse{Token: in.Token, UsernameWorlds: worlds}
}

// UpdatePlayer saves world-owned data of a player online in the requesting
// world.
func (c *Coordinator) UpdatePlayer(ctx context.Context, req Request, in protocol.UpdateRequest) (resp protocol.StatusResponse, err error) {
	username := auth.NormalizeUsername(in.Username)
	ctx, finish := c.startSpan(ctx, "update", req, attribute.String("username", username))
	defer func() { finish(err) }()

	resp = protocol.StatusResponse{Token: in.Token}
	if req.World == nil {
		resp.Error = protocol.ErrorNotConnected
		return resp, nil
	}
	entry, ok := c.presence.Lookup(username)
	if !ok || entry.World != req.World.ID {
		resp.Error = protocol.ErrorNotOnline
		return resp, nil
	}

	if err := c.store.UpdateProfile(ctx, entry.AccountID, in.Rank, in.Profile); err != nil {
		return resp, oops.Code("PLAYER_UPDATE_FAILED").
			With("username", username).
			With("world_id", req.World.ID).
			Wrap(err)
	}
	resp.Success = true
	return resp, nil
}

// WorldDeparted clears the presence of a world whose link dropped and
// tells the remaining worlds.
func (c *Coordinator) WorldDeparted(ctx context.Context, world int) {
	usernames := c.presence.ClearWorld(world)
	if len(usernames) == 0 {
		return
	}
	onlinePlayers.Set(float64(c.presence.Online()))
	for _, username := range usernames {
		c.router.Broadcast(ctx, relay.LoggedOut(username))
	}
	slog.InfoContext(ctx, "world departed",
		"world_id", world,
		"players", len(usernames),
	)
}
