// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import "github.com/samber/oops"

// Handler identifies the kind of a frame.
type Handler int

// Requests accepted by the gateway.
const (
	HandlerUnknown Handler = iota
	HandlerPlayerLogin
	HandlerPlayerRegister
	HandlerPlayerLogout
	HandlerPlayerMessage
	HandlerPlayerCount
	HandlerPlayerOnlineCount
	HandlerPlayerGetWorlds
	HandlerPlayerUpdate
)

// Events delivered to world links.
const (
	HandlerPlayerLoggedIn Handler = iota + 100
	HandlerPlayerLoggedOut
)

var handlerNames = map[Handler]string{
	HandlerPlayerLogin:       "playerLogin",
	HandlerPlayerRegister:    "playerRegister",
	HandlerPlayerLogout:      "playerLogout",
	HandlerPlayerMessage:     "playerMessage",
	HandlerPlayerCount:       "playerCount",
	HandlerPlayerOnlineCount: "playerOnlineCount",
	HandlerPlayerGetWorlds:   "playerGetWorlds",
	HandlerPlayerUpdate:      "playerUpdate",
	HandlerPlayerLoggedIn:    "playerLoggedIn",
	HandlerPlayerLoggedOut:   "playerLoggedOut",
}

var handlersByName = func() map[string]Handler {
	m := make(map[string]Handler, len(handlerNames))
	for h, name := range handlerNames {
		m[name] = h
	}
	return m
}()

// String returns the wire name of the handler.
func (h Handler) String() string {
	if name, ok := handlerNames[h]; ok {
		return name
	}
	return "unknown"
}

// IsRequest reports whether h names a request a link may send to the gateway.
func (h Handler) IsRequest() bool {
	return h > HandlerUnknown && h <= HandlerPlayerUpdate
}

// ParseHandler maps a wire name to its Handler.
func ParseHandler(name string) (Handler, error) {
	h, ok := handlersByName[name]
	if !ok {
		return HandlerUnknown, oops.Code("PROTOCOL_UNKNOWN_HANDLER").
			With("handler", name).
			Errorf("unknown handler %q", name)
	}
	return h, nil
}
