package app

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Manage the PostgreSQL schema with the migrations embedded in this binary.
SQLite databases create their tables on open and need no migrations.`,
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPostgres(cmd, func(dsn string) error {
				if err := store.MigrateSteps(dsn, true, steps); err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				cmd.Println("Migrations applied successfully")
				return nil
			})
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPostgres(cmd, func(dsn string) error {
				if err := store.MigrateSteps(dsn, false, steps); err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				cmd.Println("Migrations rolled back successfully")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "Number of migrations to roll back (0 = all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPostgres(cmd, func(dsn string) error {
				v, dirty, err := store.MigrationVersion(dsn)
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				if dirty {
					return fmt.Errorf("database is in a dirty state (version %d)", v)
				}
				cmd.Printf("Current migration version: %d\n", v)
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as being at VERSION without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withPostgres(cmd, func(dsn string) error {
				if err := store.ForceMigrationVersion(dsn, v); err != nil {
					return fmt.Errorf("force migration failed: %w", err)
				}
				cmd.Printf("Forced database to version %d\n", v)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func withPostgres(cmd *cobra.Command, fn func(dsn string) error) error {
	c, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	if err := requirePostgres(c); err != nil {
		return err
	}
	return fn(c.PostgresDSN)
}

func requirePostgres(c *config.Config) error {
	if c.DBAdapter != "postgres" {
		return fmt.Errorf("migrations only work with PostgreSQL, current adapter: %s", c.DBAdapter)
	}
	return nil
}
