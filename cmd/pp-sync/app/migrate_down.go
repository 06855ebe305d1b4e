package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonpool/pigeonpool-sync-server/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Long: `Roll back all database migrations. This drops the pool's tables and
the data in them; it is intended for development and test databases.`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	connString, cfg, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	confirmed, err := confirmMigration(cmd, cfg, "roll back ALL migrations on")
	if err != nil {
		return err
	}
	if !confirmed {
		return nil
	}

	slog.Info("rolling back database migrations")
	if err := database.MigrateDown(connString); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	reportMigrationVersion(connString)
	return nil
}
