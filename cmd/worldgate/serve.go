// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/auth/memory"
	"github.com/holomush/worldgate/internal/auth/postgres"
	authredis "github.com/holomush/worldgate/internal/auth/redis"
	"github.com/holomush/worldgate/internal/clock"
	"github.com/holomush/worldgate/internal/config"
	"github.com/holomush/worldgate/internal/control"
	"github.com/holomush/worldgate/internal/logging"
	"github.com/holomush/worldgate/internal/observability"
	"github.com/holomush/worldgate/internal/presence"
	"github.com/holomush/worldgate/internal/relay"
	"github.com/holomush/worldgate/internal/session"
	"github.com/holomush/worldgate/internal/store"
	"github.com/holomush/worldgate/internal/transport"
)

const (
	serviceName     = "worldgate"
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway. World processes open links to it, send login,
registration and presence requests, and receive login and logout
notifications for every world.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logging.SetDefault(serviceName, version, cfg.LogFormat, level)
			return runServe(cmd.Context(), cmd, cfg, autoMigrate)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending database migrations before serving")

	return cmd
}

// runServe runs the gateway until a signal arrives, ctx ends or one of the
// servers fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg config.Config, autoMigrate bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if autoMigrate {
		if err := migrateUp(cfg); err != nil {
			return err
		}
	}

	gw, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}

	errChans, err := gw.start()
	if err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		gw.stop(stopCtx)
		return err
	}
	for name, ch := range errChans {
		go monitorServerErrors(ctx, cancel, ch, name)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gateway started")
	slog.Info("gateway ready",
		"listen_addr", gw.links.Addr(),
		"worlds", len(cfg.Worlds),
		"store", cfg.Store.Driver,
		"attempts", cfg.Attempts.Driver,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	gw.stop(shutdownCtx)

	slog.Info("shutdown complete")
	return nil
}

// gateway owns every long-running component of the serve command.
type gateway struct {
	cfg      config.Config
	sessions *session.Coordinator
	links    *transport.Server
	metrics  *observability.Server
	control  *control.GRPCServer
	ready    atomic.Bool
	closers  []func()
}

// newGateway connects the stores and builds the servers without starting
// them. The metrics and control servers are nil when their address is
// empty.
func newGateway(ctx context.Context, cfg config.Config) (*gateway, error) {
	gw := &gateway{cfg: cfg}

	credentials, attempts, err := gw.openStores(ctx)
	if err != nil {
		gw.close()
		return nil, err
	}

	hasher, err := auth.NewBcryptHasher(cfg.PasswordHashCost)
	if err != nil {
		gw.close()
		return nil, err
	}

	router := relay.NewRouter()
	gw.sessions, err = session.New(session.Config{
		Store:        credentials,
		Attempts:     attempts,
		Hasher:       hasher,
		Presence:     presence.NewRegistry(),
		Router:       router,
		Clock:        clock.New(),
		PlayersPerIP: cfg.PlayersPerIP,
	})
	if err != nil {
		gw.close()
		return nil, err
	}

	authenticator, err := transport.NewAuthenticator(transport.AuthConfig{
		Secret:       cfg.Links.Secret,
		AllowedAddrs: cfg.Links.AllowedAddrs,
		Protocol:     cfg.Links.Protocol,
	})
	if err != nil {
		gw.close()
		return nil, err
	}

	gw.links, err = transport.NewServer(transport.Config{
		Addr:           cfg.ListenAddr,
		Worlds:         cfg.SessionWorlds(),
		Sessions:       gw.sessions,
		Router:         router,
		Auth:           authenticator,
		RequestTimeout: cfg.RequestTimeout,
		QueueSize:      cfg.Links.QueueSize,
	})
	if err != nil {
		gw.close()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		gw.metrics, err = observability.NewServer(cfg.MetricsAddr, gw.ready.Load, gatewayCollectors()...)
		if err != nil {
			gw.close()
			return nil, err
		}
	}

	if cfg.ControlAddr != "" {
		gw.control, err = control.NewGRPCServer(serviceName)
		if err != nil {
			gw.close()
			return nil, err
		}
	}

	return gw, nil
}

func gatewayCollectors() []prometheus.Collector {
	var all []prometheus.Collector
	all = append(all, session.Collectors()...)
	all = append(all, relay.Collectors()...)
	all = append(all, transport.Collectors()...)
	return all
}

// openStores returns the credential store and the failed login store.
func (g *gateway) openStores(ctx context.Context) (auth.Store, auth.LoginAttemptRepository, error) {
	var (
		credentials auth.Store
		attempts    auth.LoginAttemptRepository
	)

	switch g.cfg.Store.Driver {
	case config.StoreDriverMemory:
		mem := memory.New()
		credentials, attempts = mem, mem
		slog.Warn("using the in-memory credential store, accounts are lost on exit")
	default:
		pool, err := store.Connect(ctx, g.cfg.Store.DatabaseURL, store.ConnectOptions{})
		if err != nil {
			return nil, nil, err
		}
		g.closers = append(g.closers, pool.Close)
		pg := postgres.NewStore(pool)
		credentials, attempts = pg, pg
	}

	if g.cfg.Attempts.Driver == config.AttemptsDriverRedis {
		rs, err := authredis.New(ctx, authredis.Config{
			URL: g.cfg.Attempts.RedisURL,
			TTL: g.cfg.Attempts.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		g.closers = append(g.closers, func() {
			if err := rs.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		})
		attempts = rs
	}

	return credentials, attempts, nil
}

// start starts the control, metrics and link servers in that order and
// marks the gateway ready. It returns the error channel of each server.
func (g *gateway) start() (map[string]<-chan error, error) {
	errChans := make(map[string]<-chan error, 3)

	if g.control != nil {
		ch, err := g.control.Start(g.cfg.ControlAddr, nil)
		if err != nil {
			return nil, oops.Code("CONTROL_START_FAILED").With("addr", g.cfg.ControlAddr).Wrap(err)
		}
		errChans["control-grpc"] = ch
		slog.Info("control gRPC server started", "addr", g.control.Addr())
	}

	if g.metrics != nil {
		ch, err := g.metrics.Start()
		if err != nil {
			return nil, oops.Code("METRICS_START_FAILED").With("addr", g.cfg.MetricsAddr).Wrap(err)
		}
		errChans["observability"] = ch
	}

	ch, err := g.links.Start()
	if err != nil {
		return nil, oops.Code("LINK_SERVER_START_FAILED").With("addr", g.cfg.ListenAddr).Wrap(err)
	}
	errChans["links"] = ch

	g.ready.Store(true)
	if g.control != nil {
		g.control.SetServing(true)
	}
	return errChans, nil
}

// stop reports not ready, drains the link server, stops the rest and
// closes the stores.
func (g *gateway) stop(ctx context.Context) {
	g.ready.Store(false)
	if g.control != nil {
		g.control.SetServing(false)
	}

	if err := g.links.Stop(ctx); err != nil {
		slog.Warn("error stopping link server", "error", err)
	}
	if g.metrics != nil {
		if err := g.metrics.Stop(ctx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
	if g.control != nil {
		if err := g.control.Stop(ctx); err != nil {
			slog.Warn("error stopping control gRPC server", "error", err)
		}
	}
	g.close()
}

func (g *gateway) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
	g.closers = nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
