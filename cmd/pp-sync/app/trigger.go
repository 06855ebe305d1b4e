package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/config"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/db"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/feed"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/ledger"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/locker"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/notify"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/reconcile"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/scheduler"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/store"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [job]",
	Short: "Run a scheduled job once, immediately",
	Long: `Run one of the scheduled jobs immediately, outside its normal window.
The cross-process job lock is still honored, so a manual run never
overlaps a run by a live server.

Available jobs: ` + strings.Join([]string{
		scheduler.JobKickoffSync,
		scheduler.JobScoreSync,
		scheduler.JobSundayWrap,
		scheduler.JobMondayWrap,
		scheduler.JobTuesdayWarn,
	}, ", "),
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	triggerCmd.Flags().Bool("mark-run", false, "Record the run in the ledger so the next scheduled window is consumed")
	triggerCmd.Flags().Bool("skip-gate", false, "Run even when the job's readiness gate declines")

	if err := triggerCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("failed to mark config flag as required", "error", err)
	}
}

func runTrigger(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jobName := args[0]

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	markRun, err := cmd.Flags().GetBool("mark-run")
	if err != nil {
		return fmt.Errorf("failed to get mark-run flag: %w", err)
	}
	skipGate, err := cmd.Flags().GetBool("skip-gate")
	if err != nil {
		return fmt.Errorf("failed to get skip-gate flag: %w", err)
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
	livePoll, err := cfg.Scheduler.GetLivePollInterval()
	if err != nil {
		return fmt.Errorf("invalid live poll interval: %w", err)
	}

	feedClient := feed.NewHTTPClient(cfg.Feed.GetEndpoint(), feedTimeout)
	engine := reconcile.NewEngine(pool, feedClient, cal)

	sender, err := notify.NewSender(cfg.Notifications)
	if err != nil {
		return fmt.Errorf("failed to create notification sender: %w", err)
	}

	registry, err := scheduler.DefaultJobs(scheduler.Deps{
		Store:            store.New(pool, cfg.Scheduler.GetTimezone()),
		Engine:           engine,
		Sender:           sender,
		Cal:              cal,
		KickoffSyncHour:  cfg.Scheduler.GetKickoffSyncHour(),
		TueWarningHour:   cfg.Scheduler.GetTueWarningHour(),
		LivePollInterval: livePoll,
	})
	if err != nil {
		return fmt.Errorf("failed to build job registry: %w", err)
	}

	summary, err := scheduler.Trigger(ctx, registry, ledger.New(pool), locker.New(pool), jobName, scheduler.TriggerOptions{
		MarkRun:  markRun,
		SkipGate: skipGate,
	})
	if err != nil {
		return fmt.Errorf("job %s failed: %w", jobName, err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
