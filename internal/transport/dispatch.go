// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"encoding/json"

	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/session"
)

// Sessions runs the request pipelines. *session.Coordinator implements it.
type Sessions interface {
	Login(ctx context.Context, req session.Request, in protocol.LoginRequest) (protocol.LoginResponse, error)
	Register(ctx context.Context, req session.Request, in protocol.RegisterRequest) (protocol.RegisterResponse, error)
	Logout(ctx context.Context, req session.Request, in protocol.LogoutRequest)
	Message(ctx context.Context, req session.Request, in protocol.MessageRequest) protocol.StatusResponse
	PlayerCount(ctx context.Context, req session.Request, in protocol.CountRequest) (protocol.CountResponse, error)
	OnlineCount(ctx context.Context, req session.Request, in protocol.CountRequest) protocol.CountResponse
	GetWorlds(ctx context.Context, req session.Request, in protocol.GetWorldsRequest) protocol.GetWorldsResponse
	UpdatePlayer(ctx context.Context, req session.Request, in protocol.UpdateRequest) (protocol.StatusResponse, error)
	WorldDeparted(ctx context.Context, world int)
}

var _ Sessions = (*session.Coordinator)(nil)

// handlerFunc decodes a frame and runs one pipeline. A nil reply means the
// request has no response.
type handlerFunc func(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error)

var handlers = map[protocol.Handler]handlerFunc{
	protocol.HandlerPlayerLogin:       handleLogin,
	protocol.HandlerPlayerRegister:    handleRegister,
	protocol.HandlerPlayerLogout:      handleLogout,
	protocol.HandlerPlayerMessage:     handleMessage,
	protocol.HandlerPlayerCount:       handleCount,
	protocol.HandlerPlayerOnlineCount: handleOnlineCount,
	protocol.HandlerPlayerGetWorlds:   handleGetWorlds,
	protocol.HandlerPlayerUpdate:      handleUpdate,
}

// errBadFrame marks a frame that could not be decoded.
type errBadFrame struct{ err error }

func (e errBadFrame) Error() string { return "bad frame: " + e.err.Error() }
func (e errBadFrame) Unwrap() error { return e.err }

func decode[T any](frame []byte) (T, error) {
	var v T
	if err := json.Unmarshal(frame, &v); err != nil {
		return v, errBadFrame{err: err}
	}
	return v, nil
}

func handleLogin(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.LoginRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.Login(ctx, req, in)
}

func handleRegister(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.RegisterRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, req, in)
}

func handleLogout(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.LogoutRequest](frame)
	if err != nil {
		return nil, err
	}
	s.Logout(ctx, req, in)
	return nil, nil
}

func handleMessage(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.MessageRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.Message(ctx, req, in), nil
}

func handleCount(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.CountRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.PlayerCount(ctx, req, in)
}

func handleOnlineCount(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.CountRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.OnlineCount(ctx, req, in), nil
}

func handleGetWorlds(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.GetWorldsRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.GetWorlds(ctx, req, in), nil
}

func handleUpdate(ctx context.Context, s Sessions, req session.Request, frame []byte) (any, error) {
	in, err := decode[protocol.UpdateRequest](frame)
	if err != nil {
		return nil, err
	}
	return s.UpdatePlayer(ctx, req, in)
}
