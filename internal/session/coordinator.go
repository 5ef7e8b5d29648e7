// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session runs the login, registration and presence pipelines on
// behalf of connected world processes.
package session

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/clock"
	"github.com/holomush/worldgate/internal/presence"
	"github.com/holomush/worldgate/internal/relay"
)

var tracer = otel.Tracer("worldgate/session")

// World is a configured world process.
type World struct {
	ID      int
	Name    string
	Members bool
}

// Request is the per-request context handed to every pipeline.
type Request struct {
	// World is the world the request came from. It is nil for auxiliary
	// links that are not bound to a world.
	World *World

	// LinkID identifies the link in logs.
	LinkID string
}

// WorldID returns the id of the requesting world, or presence.Offline.
func (r Request) WorldID() int {
	if r.World == nil {
		return presence.Offline
	}
	return r.World.ID
}

// Config holds the collaborators of a Coordinator.
type Config struct {
	Store        auth.Store
	Attempts     auth.LoginAttemptRepository
	Hasher       auth.PasswordHasher
	Presence     *presence.Registry
	Router       *relay.Router
	Clock        clock.Clock
	PlayersPerIP int
}

// Coordinator sequences the admission stages and keeps presence and the
// relay in step.
type Coordinator struct {
	store    auth.Store
	hasher   auth.PasswordHasher
	limiter  *auth.RateLimiter
	verifier *auth.CredentialVerifier
	gate     *auth.AccessGate
	presence *presence.Registry
	router   *relay.Router
	clock    clock.Clock
}

// New creates a Coordinator. Clock defaults to the system clock.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, oops.Errorf("store is required")
	}
	if cfg.Attempts == nil {
		return nil, oops.Errorf("login attempt repository is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if cfg.Presence == nil {
		return nil, oops.Errorf("presence registry is required")
	}
	if cfg.Router == nil {
		return nil, oops.Errorf("router is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	limiter, err := auth.NewRateLimiter(cfg.Attempts, clk)
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewCredentialVerifier(cfg.Store, cfg.Hasher)
	if err != nil {
		return nil, err
	}
	gate, err := auth.NewAccessGate(auth.AccessGateConfig{
		Store:        cfg.Store,
		Presence:     cfg.Presence,
		Clock:        clk,
		PlayersPerIP: cfg.PlayersPerIP,
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		limiter:  limiter,
		verifier: verifier,
		gate:     gate,
		presence: cfg.Presence,
		router:   cfg.Router,
		clock:    clk,
	}, nil
}

// startSpan opens a span for operation and returns a finish func that
// records err and the duration.
func (c *Coordinator) startSpan(ctx context.Context, operation string, req Request, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	attrs = append(attrs,
		attribute.Int("world.id", req.WorldID()),
		attribute.String("link.id", req.LinkID),
	)
	ctx, span := tracer.Start(ctx, "session."+operation, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		pipelineDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
		span.End()
	}
}
