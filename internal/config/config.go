// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads and validates the gateway configuration.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/logging"
	"github.com/holomush/worldgate/internal/session"
	"github.com/holomush/worldgate/internal/transport"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Attempt store drivers.
const (
	AttemptsDriverStore = "store"
	AttemptsDriverRedis = "redis"
)

// Config is the gateway configuration.
type Config struct {
	ListenAddr       string        `koanf:"listen_addr" json:"listen_addr,omitempty" yaml:"listen_addr" jsonschema:"description=Link server listen address"`
	MetricsAddr      string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" yaml:"metrics_addr" jsonschema:"description=Metrics and health probe address; empty disables it"`
	ControlAddr      string        `koanf:"control_addr" json:"control_addr,omitempty" yaml:"control_addr" jsonschema:"description=gRPC health service address; empty disables it"`
	LogFormat        string        `koanf:"log_format" json:"log_format,omitempty" yaml:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel         string        `koanf:"log_level" json:"log_level,omitempty" yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	RequestTimeout   time.Duration `koanf:"request_timeout" json:"request_timeout,omitempty" yaml:"request_timeout" jsonschema:"oneof_type=string;integer"`
	PasswordHashCost int           `koanf:"password_hash_cost" json:"password_hash_cost,omitempty" yaml:"password_hash_cost" jsonschema:"minimum=4,maximum=31"`
	PlayersPerIP     int           `koanf:"players_per_ip" json:"players_per_ip,omitempty" yaml:"players_per_ip" jsonschema:"minimum=1"`
	Store            StoreConfig   `koanf:"store" json:"store,omitempty" yaml:"store"`
	Attempts         AttemptConfig `koanf:"attempts" json:"attempts,omitempty" yaml:"attempts"`
	Links            LinkConfig    `koanf:"links" json:"links,omitempty" yaml:"links"`
	Worlds           []WorldConfig `koanf:"worlds" json:"worlds,omitempty" yaml:"worlds"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Driver      string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=postgres,enum=memory"`
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty" yaml:"database_url"`
}

// AttemptConfig selects where failed login attempts are kept.
type AttemptConfig struct {
	Driver   string        `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=store,enum=redis"`
	RedisURL string        `koanf:"redis_url" json:"redis_url,omitempty" yaml:"redis_url"`
	TTL      time.Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl" jsonschema:"oneof_type=string;integer"`
}

// LinkConfig configures link authentication and buffering.
type LinkConfig struct {
	Secret       string   `koanf:"secret" json:"secret,omitempty" yaml:"secret"`
	AllowedAddrs []string `koanf:"allowed_addrs" json:"allowed_addrs,omitempty" yaml:"allowed_addrs"`
	Protocol     string   `koanf:"protocol" json:"protocol,omitempty" yaml:"protocol"`
	QueueSize    int      `koanf:"queue_size" json:"queue_size,omitempty" yaml:"queue_size" jsonschema:"minimum=1"`
}

// WorldConfig is one configured world process.
type WorldConfig struct {
	ID      int    `koanf:"id" json:"id" yaml:"id" jsonschema:"required,minimum=1"`
	Name    string `koanf:"name" json:"name,omitempty" yaml:"name"`
	Members bool   `koanf:"members" json:"members,omitempty" yaml:"members"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		ListenAddr:       ":43594",
		MetricsAddr:      "127.0.0.1:9100",
		ControlAddr:      "127.0.0.1:9101",
		LogFormat:        "json",
		LogLevel:         "info",
		RequestTimeout:   transport.DefaultRequestTimeout,
		PasswordHashCost: 10,
		PlayersPerIP:     auth.DefaultPlayersPerIP,
		Store: StoreConfig{
			Driver: StoreDriverPostgres,
		},
		Attempts: AttemptConfig{
			Driver: AttemptsDriverStore,
		},
		Links: LinkConfig{
			Protocol:  transport.DefaultProtocol,
			QueueSize: transport.DefaultQueueSize,
		},
	}
}

// Validate checks values the schema cannot express.
func (c Config) Validate() error {
	invalid := func(field string) oops.OopsErrorBuilder {
		return oops.Code("CONFIG_INVALID").With("field", field)
	}

	if c.ListenAddr == "" {
		return invalid("listen_addr").Errorf("listen_addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level").Wrap(err)
	}
	if c.RequestTimeout <= 0 {
		return invalid("request_timeout").Errorf("request_timeout must be positive")
	}
	if c.PasswordHashCost < 4 || c.PasswordHashCost > 31 {
		return invalid("password_hash_cost").Errorf("password_hash_cost must be between 4 and 31, got %d", c.PasswordHashCost)
	}
	if c.PlayersPerIP < 1 {
		return invalid("players_per_ip").Errorf("players_per_ip must be at least 1")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url").Errorf("store.database_url is required for the postgres driver")
		}
	case StoreDriverMemory:
	default:
		return invalid("store.driver").Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Attempts.Driver {
	case AttemptsDriverStore:
	case AttemptsDriverRedis:
		if c.Attempts.RedisURL == "" {
			return invalid("attempts.redis_url").Errorf("attempts.redis_url is required for the redis driver")
		}
	default:
		return invalid("attempts.driver").Errorf("unknown attempts driver %q", c.Attempts.Driver)
	}
	if c.Attempts.TTL < 0 {
		return invalid("attempts.ttl").Errorf("attempts.ttl cannot be negative")
	}

	if c.Links.QueueSize < 1 {
		return invalid("links.queue_size").Errorf("links.queue_size must be at least 1")
	}

	seen := make(map[int]bool, len(c.Worlds))
	for _, w := range c.Worlds {
		if w.ID < 1 {
			return invalid("worlds").With("world_id", w.ID).Errorf("world ids must be positive")
		}
		if seen[w.ID] {
			return invalid("worlds").With("world_id", w.ID).Errorf("duplicate world id %d", w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}

// SessionWorlds returns the configured worlds.
func (c Config) SessionWorlds() []session.World {
	worlds := make([]session.World, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		worlds = append(worlds, session.World{ID: w.ID, Name: w.Name, Members: w.Members})
	}
	return worlds
}

// Redacted returns a copy safe to print: the link secret is masked and URL
// passwords are hidden.
func (c Config) Redacted() Config {
	out := c
	if out.Links.Secret != "" {
		out.Links.Secret = "********"
	}
	out.Store.DatabaseURL = redactURL(out.Store.DatabaseURL)
	out.Attempts.RedisURL = redactURL(out.Attempts.RedisURL)
	out.Links.AllowedAddrs = append([]string(nil), c.Links.AllowedAddrs...)
	out.Worlds = append([]WorldConfig(nil), c.Worlds...)
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "********"
	}
	return u.Redacted()
}
