package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonpool/pigeonpool-sync-server/database"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/config"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply all pending database migrations to bring the schema up to date.
This command will read the database connection parameters from the config file
and apply all migrations that haven't been run yet.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connString, cfg, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	confirmed, err := confirmMigration(cmd, cfg, "apply migrations to")
	if err != nil {
		return err
	}
	if !confirmed {
		return nil
	}

	slog.Info("applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	reportMigrationVersion(connString)
	return nil
}

// migrationTarget loads the config and builds the connection string the
// migration will run against.
func migrationTarget(cmd *cobra.Command) (string, *config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return connString, cfg, nil
}

// confirmMigration prompts unless --yes was passed.
func confirmMigration(cmd *cobra.Command, cfg *config.Config, action string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}

	slog.Info(fmt.Sprintf("about to %s database", action),
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database,
	)
	fmt.Print("Continue? (yes/no): ")
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	if response != "yes" && response != "y" {
		slog.Info("migration cancelled by user")
		return false, nil
	}
	return true, nil
}

func reportMigrationVersion(connString string) {
	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		slog.Warn("unable to get migration version", "error", err)
	case dirty:
		slog.Warn("database is in a dirty state", "version", version)
	default:
		slog.Info("migrations applied successfully", "version", version)
	}
}
