package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"notification/internal/config"
	"notification/internal/storage/sqlstorage"
	"notification/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Println("[ERROR]", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Manage the processed_events schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")

	withMigrate := func(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := sql.Open(sqlstorage.DriverName(cfg.Storage.Driver), cfg.Storage.DataSource())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			m, err := migrations.New(db, cfg.Storage.Driver)
			if err != nil {
				return err
			}

			return fn(m, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up [N]",
			Short: "Apply all or N pending migrations",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
				if len(args) == 0 {
					return ignoreNoChange(m.Up())
				}
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return ignoreNoChange(m.Steps(n))
			}),
		},
		&cobra.Command{
			Use:   "down [N]",
			Short: "Revert all or N applied migrations",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
				if len(args) == 0 {
					return ignoreNoChange(m.Down())
				}
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return ignoreNoChange(m.Steps(-n))
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return m.Force(v)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, _ []string) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
		},
	)

	return root
}

func parseSteps(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid step count %q", arg)
	}
	return n, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no change")
		return nil
	}
	return err
}
