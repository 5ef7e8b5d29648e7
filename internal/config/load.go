// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/worldgate/internal/xdg"
)

// LoadOptions control where configuration is read from.
type LoadOptions struct {
	// Path is the config file. When empty the XDG default is used and a
	// missing file is not an error.
	Path string

	// Flags override file values. Flag names use dashes where keys use
	// underscores, and dots for nesting (store.database-url).
	Flags *pflag.FlagSet
}

// Load reads the config file, applies flags over it and validates the
// result.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	switch {
	case err == nil:
		if err := ValidateYAML(data); err != nil {
			return cfg, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			return FlagKey(f.Name), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FlagKey maps a flag name to its config key.
func FlagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
