package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-engine/internal/persistence"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.AddCommand(
		migrateSubcommand(persistence.MigrateUp, "Apply all pending migrations"),
		migrateSubcommand(persistence.MigrateDown, "Roll back the latest migration"),
		migrateSubcommand(persistence.MigrateStatus, "Show migration status"),
	)
	return cmd
}

func migrateSubcommand(command persistence.MigrationCommand, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			return persistence.Migrate(ctx, pg.PoolHandle(), command, logger)
		},
	}
}
