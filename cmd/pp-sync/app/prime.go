package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/config"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/db"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/feed"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/reconcile"
)

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Populate the season schedule from the feed",
	Long: `Fetch the scoreboard feed for a range of weeks and populate the
weeks, teams, and games tables. Safe to re-run: rows that already match
the feed are left untouched.

Typically run once before the season starts to load the full schedule.`,
	RunE: runPrime,
}

func init() {
	primeCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	primeCmd.Flags().Int("from", 1, "First week to populate")
	primeCmd.Flags().Int("to", 18, "Last week to populate")

	if err := primeCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("failed to mark config flag as required", "error", err)
	}
}

func runPrime(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	fromWeek, err := cmd.Flags().GetInt("from")
	if err != nil {
		return fmt.Errorf("failed to get from flag: %w", err)
	}
	toWeek, err := cmd.Flags().GetInt("to")
	if err != nil {
		return fmt.Errorf("failed to get to flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cal, err := calendar.New(cfg.Scheduler.GetTimezone())
	if err != nil {
		return fmt.Errorf("failed to load pool timezone: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	feedTimeout, err := cfg.Feed.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid feed timeout: %w", err)
	}
	feedClient := feed.NewHTTPClient(cfg.Feed.GetEndpoint(), feedTimeout)
	engine := reconcile.NewEngine(pool, feedClient, cal)

	slog.Info("populating schedule", "from_week", fromWeek, "to_week", toWeek)
	changed, err := engine.Populate(ctx, fromWeek, toWeek)
	if err != nil {
		return fmt.Errorf("failed to populate schedule: %w", err)
	}

	slog.Info("schedule populate complete", "from_week", fromWeek, "to_week", toWeek, "rows_changed", changed)
	return nil
}
