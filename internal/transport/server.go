// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package transport serves world and auxiliary links over WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/relay"
	"github.com/holomush/worldgate/internal/session"
	"github.com/holomush/worldgate/pkg/errutil"
)

// DefaultRequestTimeout bounds the handling of one frame.
const DefaultRequestTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	Addr           string
	Worlds         []session.World
	Sessions       Sessions
	Router         *relay.Router
	Auth           *Authenticator
	RequestTimeout time.Duration
	QueueSize      int
}

// Server accepts links and dispatches their frames.
type Server struct {
	cfg        Config
	worlds     map[int]*session.World
	upgrader   websocket.Upgrader
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool

	// ctx is cancelled by Stop and parents every link.
	ctx    context.Context
	cancel context.CancelFunc
	links  sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, oops.Errorf("sessions are required")
	}
	if cfg.Router == nil {
		return nil, oops.Errorf("router is required")
	}
	if cfg.Auth == nil {
		auth, err := NewAuthenticator(AuthConfig{})
		if err != nil {
			return nil, err
		}
		cfg.Auth = auth
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	worlds := make(map[int]*session.World, len(cfg.Worlds))
	for i := range cfg.Worlds {
		w := cfg.Worlds[i]
		worlds[w.ID] = &w
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		worlds: worlds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/worlds/{worldID:[0-9]+}/link", s.handleWorldLink).Methods(http.MethodGet)
	v1.HandleFunc("/link", s.handleAuxLink).Methods(http.MethodGet)
	return r
}

// Start begins accepting links. The returned channel receives serve
// errors and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("link server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("link server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("link server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop closes the listener and every link, then waits for link handlers
// to finish or ctx to end.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	// Hijacked connections are not tracked by Shutdown.
	s.cancel()
	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = oops.With("operation", "shutdown_link_server").Wrap(shutdownErr)
		}
	}

	done := make(chan struct{})
	go func() {
		s.links.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = oops.With("operation", "wait_for_links").Wrap(ctx.Err())
		}
	}

	slog.Info("link server stopped")
	return err
}

// Addr returns the listen address, or an empty string when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWorldLink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["worldID"])
	if err != nil {
		http.Error(w, "invalid world", http.StatusBadRequest)
		return
	}
	world, ok := s.worlds[id]
	if !ok {
		http.Error(w, "unknown world", http.StatusNotFound)
		return
	}
	s.serveLink(w, r, world)
}

func (s *Server) handleAuxLink(w http.ResponseWriter, r *http.Request) {
	s.serveLink(w, r, nil)
}

func (s *Server) serveLink(w http.ResponseWriter, r *http.Request, world *session.World) {
	worldID := session.Request{World: world}.WorldID()
	if err := s.cfg.Auth.Authorize(r, worldID); err != nil {
		linkRejections.WithLabelValues(codeOf(err)).Inc()
		slog.Warn("link rejected",
			"world_id", worldID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, http.StatusText(statusFor(err)), statusFor(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("link upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s.links.Add(1)
	defer s.links.Done()

	link := newLink(conn, worldID, s.cfg.QueueSize)
	s.run(link, world, r.RemoteAddr)
}

// run owns a link from upgrade to close.
func (s *Server) run(link *Link, world *session.World, remote string) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		link.writeLoop()
	}()

	// Close the link when the server stops so readLoop returns.
	go func() {
		<-ctx.Done()
		_ = link.Close()
	}()

	req := session.Request{World: world, LinkID: link.ID()}
	if world != nil {
		if prev := s.cfg.Router.Attach(world.ID, link); prev != nil {
			slog.Info("world link replaced", "world_id", world.ID, "link_id", prev.ID())
			if c, ok := prev.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
	connectedLinks.Inc()
	slog.Info("link connected",
		"link_id", link.ID(),
		"world_id", req.WorldID(),
		"remote_addr", remote,
	)

	var inflight sync.WaitGroup
	err := link.readLoop(func(frame []byte) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.handleFrame(ctx, link, req, frame)
		}()
	})

	cancel()
	inflight.Wait()
	_ = link.Close()
	writer.Wait()
	connectedLinks.Dec()

	if world != nil && s.cfg.Router.Detach(world.ID, link) {
		s.cfg.Sessions.WorldDeparted(context.WithoutCancel(ctx), world.ID)
	}
	slog.Info("link disconnected",
		"link_id", link.ID(),
		"world_id", req.WorldID(),
		"reason", closeReason(err),
	)
}

// handleFrame decodes, dispatches and answers one request frame.
func (s *Server) handleFrame(parent context.Context, link *Link, req session.Request, frame []byte) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RequestTimeout)
	defer cancel()

	var header protocol.Header
	if err := json.Unmarshal(frame, &header); err != nil {
		s.fail(ctx, link, nil, "unknown", protocol.ErrorBadRequest)
		return
	}
	handler, err := protocol.ParseHandler(header.Handler)
	if err != nil || !handler.IsRequest() {
		s.fail(ctx, link, header.Token, "unknown", protocol.ErrorBadRequest)
		return
	}

	reply, err := handlers[handler](ctx, s.cfg.Sessions, req, frame)
	if err != nil {
		var bad errBadFrame
		if errors.As(err, &bad) {
			s.fail(ctx, link, header.Token, handler.String(), protocol.ErrorBadRequest)
			return
		}
		errutil.LogError(slog.Default(), "request failed", oops.
			With("handler", handler.String()).
			With("link_id", req.LinkID).
			With("world_id", req.WorldID()).
			Wrap(err))
		s.fail(ctx, link, header.Token, handler.String(), protocol.ErrorInternal)
		return
	}

	frames.WithLabelValues(handler.String(), "ok").Inc()
	if reply == nil {
		return
	}
	if err := link.reply(ctx, reply); err != nil {
		slog.Debug("reply not sent", "link_id", req.LinkID, "handler", handler.String(), "error", err)
	}
}

func (s *Server) fail(ctx context.Context, link *Link, token protocol.Token, handler, reason string) {
	result := "bad_request"
	if reason == protocol.ErrorInternal {
		result = "internal_error"
	}
	frames.WithLabelValues(handler, result).Inc()
	if err := link.reply(ctx, protocol.StatusResponse{Token: token, Error: reason}); err != nil {
		slog.Debug("failure reply not sent", "link_id", link.ID(), "error", err)
	}
}

func closeReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "closed"
	}
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
