// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/worldgate/internal/config"
	"github.com/holomush/worldgate/internal/store"
)

// schemaMigrator is the part of store.Migrator the migrate commands use.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (schemaMigrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
		Long: `Apply or roll back the PostgreSQL schema of the credential store.
Without a subcommand all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m schemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.PersistentFlags().String("store.database-url", "", "PostgreSQL connection URL (overrides the config file)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration, dropping all gateway tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("All migrations rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or roll back when N is negative",
			Long: `Apply N migrations, or roll back -N when N is negative. Put -- before
a negative N so it is not read as a flag: worldgate migrate steps -- -2`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Steps(n); err != nil {
						return err
					}
					cmd.Printf("Applied %d step(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					cmd.Println(formatVersion(v, dirty))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it",
			Long: `Mark VERSION as applied without running any migration. Use it only to
recover a dirty database after fixing the schema by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced version %d\n", v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
	)

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, runs fn and
// closes the migrator.
func withMigrator(cmd *cobra.Command, fn func(schemaMigrator) error) (err error) {
	databaseURL, err := migrationDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(m)
}

// migrationDatabaseURL reads the database URL from the config file and
// the --store.database-url flag.
func migrationDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags()})
	if err != nil {
		return "", err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return "", oops.Code("CONFIG_INVALID").
			With("field", "store.driver").
			Errorf("migrations need the postgres store driver, got %q", cfg.Store.Driver)
	}
	return cfg.Store.DatabaseURL, nil
}

// migrateUp applies pending migrations for serve --migrate. Stores other
// than postgres have no schema.
func migrateUp(cfg config.Config) (err error) {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return nil
	}
	m, err := newMigrator(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}

func printMigrationStatus(cmd *cobra.Command, m schemaMigrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	cmd.Println(formatVersion(v, dirty))
	for _, a := range applied {
		cmd.Printf("  applied  %s\n", migrationLabel(a))
	}
	for _, p := range pending {
		cmd.Printf("  pending  %s\n", migrationLabel(p))
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
	}
	return nil
}

func migrationLabel(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}

func formatVersion(version uint, dirty bool) string {
	if version == 0 {
		return "Schema version: none"
	}
	if dirty {
		return fmt.Sprintf("Schema version: %d (dirty)", version)
	}
	return fmt.Sprintf("Schema version: %d", version)
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("version", arg).Errorf("version must be an integer: %q", arg)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("version", arg).Errorf("version must be non-negative, got %d", v)
	}
	return v, nil
}

// parseSteps parses the N argument of migrate steps.
func parseSteps(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, oops.Code("INVALID_STEPS").With("steps", arg).Errorf("steps must be an integer: %q", arg)
	}
	if n == 0 {
		return 0, oops.Code("INVALID_STEPS").Errorf("steps cannot be zero")
	}
	return n, nil
}
