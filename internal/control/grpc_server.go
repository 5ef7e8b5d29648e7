// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control serves the gRPC health service used by the status
// command and orchestrators.
package control

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the gateway.
const ServiceName = "worldgate.Gateway"

// GRPCServer runs the gRPC health service.
type GRPCServer struct {
	component  string
	startTime  time.Time
	health     *health.Server
	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
}

// NewGRPCServer creates a new gRPC control server. Services start as
// NOT_SERVING until SetServing is called.
// Returns an error if component is empty.
func NewGRPCServer(component string) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Errorf("component name cannot be empty")
	}
	s := &GRPCServer{
		component: component,
		startTime: time.Now(),
		health:    health.NewServer(),
	}
	s.SetServing(false)
	return s, nil
}

// Start begins listening on addr. A nil tlsConfig serves plaintext, which
// is meant for loopback addresses.
// It returns an error channel that will receive the server's exit error (or nil on graceful stop).
// Returns an error if the server is already running (double-start prevention).
func (s *GRPCServer) Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil, oops.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.With("addr", addr).Wrap(err)
	}
	s.listener = listener

	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}
	s.grpcServer = grpc.NewServer(grpc.Creds(creds))
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	srv := s.grpcServer
	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if err != nil {
			slog.Error("control gRPC server error",
				"component", s.component,
				"error", err,
			)
		}
		errCh <- err
	}()

	slog.Info("control server started", "component", s.component, "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the listen address, or an empty string when not running.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing updates the reported health of the gateway.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Uptime returns how long the server has existed.
func (s *GRPCServer) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Stop marks every service NOT_SERVING and gracefully stops the server.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return oops.With("operation", "stop_control_server").Wrap(ctx.Err())
	}
}

// Check asks the control server at addr for the health of service.
func Check(ctx context.Context, addr, service string) (*healthpb.HealthCheckResponse, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, oops.Code("CONTROL_CHECK_FAILED").With("addr", addr).With("service", service).Wrap(err)
	}
	return resp, nil
}
