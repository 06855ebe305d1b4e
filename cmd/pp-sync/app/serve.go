package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/api"
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
	"github.com/pigeonpool/pigeonpool-sync-server/internal/telemetry"
	"github.com/pigeonpool/pigeonpool-sync-server/pkg/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync server",
	Long: `Start the sync server: the scheduler coordinator that keeps schedule,
scores, and weekly notifications current, plus the HTTP status API.

The server requires a configuration file (--config) with the database
connection; feed, scheduler, and notification settings are optional and
have sensible defaults.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("failed to bind address flag", "error", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	slog.Info("starting pool sync server", "address", address)

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

	// Metrics are optional; a disabled config yields a no-op provider.
	meterOpts := []telemetry.MeterProviderOption{
		telemetry.WithMeterServiceName(telemetry.DefaultServiceName),
		telemetry.WithMeterServiceVersion(versions.GetVersionInfo().Version),
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Metrics != nil {
		meterOpts = append(meterOpts,
			telemetry.WithMeterEnabled(cfg.Telemetry.Metrics.Enabled),
			telemetry.WithMeterEndpoint(cfg.Telemetry.Metrics.Endpoint),
			telemetry.WithMeterInsecure(cfg.Telemetry.Metrics.Insecure),
		)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, meterOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if shutdowner, ok := meterProvider.(interface{ Shutdown(context.Context) error }); ok {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdowner.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shut down meter provider", "error", err)
			}
		}
	}()

	schedulerMetrics, err := telemetry.NewSchedulerMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create scheduler metrics: %w", err)
	}
	reconcileMetrics, err := telemetry.NewReconcileMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create reconcile metrics: %w", err)
	}

	feedTimeout, err := cfg.Feed.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid feed timeout: %w", err)
	}
	heartbeat, err := cfg.Scheduler.GetHeartbeat()
	if err != nil {
		return fmt.Errorf("invalid heartbeat: %w", err)
	}
	livePoll, err := cfg.Scheduler.GetLivePollInterval()
	if err != nil {
		return fmt.Errorf("invalid live poll interval: %w", err)
	}

	poolStore := store.New(pool, cfg.Scheduler.GetTimezone())
	runLedger := ledger.New(pool)
	jobLocker := locker.New(pool)
	feedClient := feed.NewHTTPClient(cfg.Feed.GetEndpoint(), feedTimeout)
	engine := reconcile.NewEngine(pool, feedClient, cal)

	sender, err := notify.NewSender(cfg.Notifications)
	if err != nil {
		return fmt.Errorf("failed to create notification sender: %w", err)
	}

	registry, err := scheduler.DefaultJobs(scheduler.Deps{
		Store:            poolStore,
		Engine:           engine,
		Sender:           sender,
		Cal:              cal,
		KickoffSyncHour:  cfg.Scheduler.GetKickoffSyncHour(),
		TueWarningHour:   cfg.Scheduler.GetTueWarningHour(),
		LivePollInterval: livePoll,
		ReconcileMetrics: reconcileMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to build job registry: %w", err)
	}

	coordinator := scheduler.New(registry, runLedger, jobLocker, cal,
		scheduler.WithHeartbeat(heartbeat),
		scheduler.WithSchedulerMetrics(schedulerMetrics),
	)

	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()
	go func() {
		if err := coordinator.Start(coordCtx); err != nil {
			slog.Error("scheduler coordinator failed", "error", err)
		}
	}()

	jobNames := make([]string, 0, len(registry.Jobs()))
	for _, job := range registry.Jobs() {
		jobNames = append(jobNames, job.Name)
	}

	router := api.NewServer(
		api.Deps{
			Pool:     pool,
			Store:    poolStore,
			Ledger:   runLedger,
			JobNames: jobNames,
		},
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	if err := coordinator.Stop(); err != nil {
		slog.Error("failed to stop scheduler coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server shutdown complete")
	return nil
}
