package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back schema migrations.

Migrations are compiled into the binary; MIGRATIONS_PATH (or the
database.migrations_path config key) points at a directory to use instead.`,
	}
	cmd.AddCommand(newMigrateUpCommand(), newMigrateDownCommand(), newMigrateVersionCommand())
	return cmd
}

func newMigrateUpCommand() *cobra.Command {
	var withRiver bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema migrations applied")

			if !withRiver {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			pool, err := openPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := jobs.MigrateUp(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "river migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRiver, "river", true, "also install or upgrade the job queue tables")
	return cmd
}

func newMigrateDownCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.IsProduction() && steps > 1 {
				return fmt.Errorf("refusing to roll back %d migrations in production; run one step at a time", steps)
			}
			if err := postgres.MigrateDown(cfg.Database.URL, cfg.Database.MigrationsPath, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			version, dirty, err := postgres.MigrationVersion(cfg.Database.URL, cfg.Database.MigrationsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty:   %t\n", version, dirty)
			return nil
		},
	}
}
