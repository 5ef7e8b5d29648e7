// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"encoding/json"
	"time"
)

// Token is the caller-supplied correlation value. It is never interpreted.
type Token = json.RawMessage

// Header is decoded first from every inbound frame to select a handler.
type Header struct {
	Handler string `json:"handler"`
	Token   Token  `json:"token,omitempty"`
}

// LoginRequest asks the gateway to admit a player into the requesting world.
type LoginRequest struct {
	Token        Token  `json:"token,omitempty"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Address      string `json:"address"`
	Reconnecting bool   `json:"reconnecting,omitempty"`
}

// LoginResponse answers a LoginRequest. Player is set only on success.
type LoginResponse struct {
	Token   Token   `json:"token,omitempty"`
	Success bool    `json:"success"`
	Code    Code    `json:"code"`
	Player  *Player `json:"player,omitempty"`
}

// RegisterRequest asks the gateway to create an account.
type RegisterRequest struct {
	Token    Token  `json:"token,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

// RegisterResponse answers a RegisterRequest.
type RegisterResponse struct {
	Token   Token `json:"token,omitempty"`
	Success bool  `json:"success"`
	Code    Code  `json:"code"`
}

// LogoutRequest removes a player from the requesting world. It has no reply.
type LogoutRequest struct {
	Token    Token  `json:"token,omitempty"`
	Username string `json:"username"`
}

// MessageRequest relays a payload to a player in another world.
type MessageRequest struct {
	Token        Token           `json:"token,omitempty"`
	ToUsername   string          `json:"toUsername"`
	ToWorld      int             `json:"toWorld"`
	FromUsername string          `json:"fromUsername"`
	Message      json.RawMessage `json:"message,omitempty"`
}

// StatusResponse is the generic success/error reply.
type StatusResponse struct {
	Token   Token  `json:"token,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CountRequest is used by both playerCount and playerOnlineCount.
type CountRequest struct {
	Token Token `json:"token,omitempty"`
}

// CountResponse answers a CountRequest.
type CountResponse struct {
	Token Token `json:"token,omitempty"`
	Count int64 `json:"count"`
}

// GetWorldsRequest asks which world each username is online in.
type GetWorldsRequest struct {
	Token     Token    `json:"token,omitempty"`
	Usernames []string `json:"usernames"`
}

// GetWorldsResponse maps each requested username to a world id, 0 when offline.
type GetWorldsResponse struct {
	Token          Token          `json:"token,omitempty"`
	UsernameWorlds map[string]int `json:"usernameWorlds"`
}

// UpdateRequest persists world-owned account data for an online player.
// Nil fields are left unchanged.
type UpdateRequest struct {
	Token    Token           `json:"token,omitempty"`
	Username string          `json:"username"`
	Rank     *int            `json:"rank,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// Player is the account view sent to worlds. It never carries credentials.
type Player struct {
	ID               string          `json:"id"`
	Username         string          `json:"username"`
	Rank             int             `json:"rank"`
	Profile          json.RawMessage `json:"profile,omitempty"`
	RegisteredAt     time.Time       `json:"registeredAt"`
	LastLoginAt      *time.Time      `json:"lastLoginAt,omitempty"`
	LastLoginAddress string          `json:"lastLoginAddress,omitempty"`
}

// Envelope is written to world links for relayed messages and presence events.
type Envelope struct {
	Handler      string          `json:"handler"`
	Token        Token           `json:"token,omitempty"`
	Username     string          `json:"username,omitempty"`
	FromUsername string          `json:"fromUsername,omitempty"`
	ToUsername   string          `json:"toUsername,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
}

// Errors reported in StatusResponse.Error.
const (
	ErrorInvalidWorld = "invalid world"
	ErrorBadRequest   = "bad request"
	ErrorInternal     = "internal error"
	ErrorNotOnline    = "player not online"
	ErrorNotConnected = "not connected to world"
)
