// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package relay

import (
	"encoding/json"

	"github.com/holomush/worldgate/internal/protocol"
)

// EventKind is the closed set of events relayed to world links.
type EventKind int

// Event kinds.
const (
	EventPlayerMessage EventKind = iota + 1
	EventPlayerLoggedIn
	EventPlayerLoggedOut
)

// eventHandlers is the dispatch table from event kind to wire handler.
var eventHandlers = map[EventKind]protocol.Handler{
	EventPlayerMessage:   protocol.HandlerPlayerMessage,
	EventPlayerLoggedIn:  protocol.HandlerPlayerLoggedIn,
	EventPlayerLoggedOut: protocol.HandlerPlayerLoggedOut,
}

// Handler returns the wire handler the event is delivered under.
func (k EventKind) Handler() protocol.Handler {
	if h, ok := eventHandlers[k]; ok {
		return h
	}
	return protocol.HandlerUnknown
}

func (k EventKind) String() string {
	if h, ok := eventHandlers[k]; ok {
		return h.String()
	}
	return "unknown"
}

// Event is one message or presence change to relay.
type Event struct {
	Kind         EventKind
	Token        protocol.Token
	Username     string
	FromUsername string
	ToUsername   string
	Message      json.RawMessage
}

// Envelope renders the event for the wire.
func (e Event) Envelope() protocol.Envelope {
	return protocol.Envelope{
		Handler:      e.Kind.Handler().String(),
		Token:        e.Token,
		Username:     e.Username,
		FromUsername: e.FromUsername,
		ToUsername:   e.ToUsername,
		Message:      e.Message,
	}
}

// LoggedIn builds the presence event for a login.
func LoggedIn(username string) Event {
	return Event{Kind: EventPlayerLoggedIn, Username: username}
}

// LoggedOut builds the presence event for a logout.
func LoggedOut(username string) Event {
	return Event{Kind: EventPlayerLoggedOut, Username: username}
}
