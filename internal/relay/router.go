// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package relay delivers cross-world messages and presence events to the
// links of connected world processes.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/protocol"
)

// Sentinel errors.
var (
	// ErrUnknownWorld means no link is attached for the target world.
	ErrUnknownWorld = errors.New("unknown world")

	// ErrLinkBusy means the link's outbound queue is full.
	ErrLinkBusy = errors.New("link busy")

	// ErrLinkClosed means the link is shutting down.
	ErrLinkClosed = errors.New("link closed")
)

// Link is the outbound side of a world connection.
type Link interface {
	// ID identifies the connection in logs.
	ID() string

	// Send queues env for delivery without blocking. It returns ErrLinkBusy
	// or ErrLinkClosed when the envelope cannot be queued.
	Send(env protocol.Envelope) error
}

// Router maps world ids to their attached links.
type Router struct {
	mu    sync.RWMutex
	links map[int]Link
}

// NewRouter creates a Router with no links.
func NewRouter() *Router {
	return &Router{links: make(map[int]Link)}
}

// Attach binds link to world and returns the link it replaced, if any.
func (r *Router) Attach(world int, link Link) Link {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.links[world]
	r.links[world] = link
	attachedLinks.Set(float64(len(r.links)))
	return prev
}

// Detach unbinds link from world. It reports false, and changes nothing,
// when a different link has since been attached for the world.
func (r *Router) Detach(world int, link Link) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.links[world]; !ok || current != link {
		return false
	}
	delete(r.links, world)
	attachedLinks.Set(float64(len(r.links)))
	return true
}

// Attached reports whether world has a link.
func (r *Router) Attached(world int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.links[world]
	return ok
}

// Worlds returns the ids of attached worlds, ascending.
func (r *Router) Worlds() []int {
	r.mu.RLock()
	worlds := make([]int, 0, len(r.links))
	for world := range r.links {
		worlds = append(worlds, world)
	}
	r.mu.RUnlock()

	sort.Ints(worlds)
	return worlds
}

// Deliver queues ev on the link of world.
func (r *Router) Deliver(world int, ev Event) error {
	r.mu.RLock()
	link, ok := r.links[world]
	r.mu.RUnlock()

	if !ok {
		return oops.Code("RELAY_UNKNOWN_WORLD").With("world_id", world).Wrap(ErrUnknownWorld)
	}
	if err := link.Send(ev.Envelope()); err != nil {
		return oops.Code("RELAY_SEND_FAILED").
			With("world_id", world).
			With("link_id", link.ID()).
			With("event", ev.Kind.String()).
			Wrap(err)
	}
	deliveredEvents.WithLabelValues(ev.Kind.String()).Inc()
	return nil
}

// Route relays a player message to the world named in req. Any failure to
// queue it is reported as an invalid world.
func (r *Router) Route(ctx context.Context, req protocol.MessageRequest) protocol.StatusResponse {
	ev := Event{
		Kind:         EventPlayerMessage,
		Token:        req.Token,
		FromUsername: req.FromUsername,
		ToUsername:   req.ToUsername,
		Message:      req.Message,
	}
	if err := r.Deliver(req.ToWorld, ev); err != nil {
		droppedEvents.WithLabelValues(ev.Kind.String(), dropReason(err)).Inc()
		slog.DebugContext(ctx, "player message not delivered",
			"world_id", req.ToWorld,
			"from_username", req.FromUsername,
			"to_username", req.ToUsername,
			"error", err,
		)
		return protocol.StatusResponse{Token: req.Token, Error: protocol.ErrorInvalidWorld}
	}
	return protocol.StatusResponse{Token: req.Token, Success: true}
}

// Broadcast queues ev on every attached link and returns how many accepted
// it. Links that cannot take the event are logged and skipped.
func (r *Router) Broadcast(ctx context.Context, ev Event) int {
	r.mu.RLock()
	targets := make(map[int]Link, len(r.links))
	for world, link := range r.links {
		targets[world] = link
	}
	r.mu.RUnlock()

	env := ev.Envelope()
	delivered := 0
	for world, link := range targets {
		if err := link.Send(env); err != nil {
			droppedEvents.WithLabelValues(ev.Kind.String(), dropReason(err)).Inc()
			slog.WarnContext(ctx, "broadcast dropped",
				"world_id", world,
				"link_id", link.ID(),
				"event", ev.Kind.String(),
				"error", err,
			)
			continue
		}
		delivered++
	}
	deliveredEvents.WithLabelValues(ev.Kind.String()).Add(float64(delivered))
	return delivered
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownWorld):
		return "unknown_world"
	case errors.Is(err, ErrLinkBusy):
		return "busy"
	case errors.Is(err, ErrLinkClosed):
		return "closed"
	}
	return "error"
}
