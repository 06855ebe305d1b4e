package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/locker"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/telemetry"
)

// defaultHeartbeat is the coordinator tick interval when none is configured
const defaultHeartbeat = time.Minute

// Coordinator drives the heartbeat loop that evaluates and runs jobs
type Coordinator interface {
	// Start begins the heartbeat loop.
	// Blocks until context is cancelled or an unrecoverable error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator and drains in-flight jobs
	Stop() error
}

// JobLedger is the slice of the run ledger the coordinator needs.
type JobLedger interface {
	LastRun(ctx context.Context, jobName string) (*time.Time, error)
	RecordRun(ctx context.Context, jobName string, at time.Time) error
}

// JobLocker takes the cross-process lock guarding each job.
type JobLocker interface {
	TryAcquire(ctx context.Context, name string) (locker.ReleaseFunc, bool, error)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	registry *Registry
	ledger   JobLedger
	locker   JobLocker
	cal      *calendar.Calendar

	heartbeat time.Duration

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
	inflight   sync.WaitGroup

	// Metrics
	metrics *telemetry.SchedulerMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithHeartbeat sets the tick interval
func WithHeartbeat(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithSchedulerMetrics sets the scheduler metrics for the coordinator
func WithSchedulerMetrics(metrics *telemetry.SchedulerMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// New creates a new coordinator with injected dependencies
func New(
	registry *Registry,
	ledger JobLedger,
	jobLocker JobLocker,
	cal *calendar.Calendar,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		registry:  registry,
		ledger:    ledger,
		locker:    jobLocker,
		cal:       cal,
		heartbeat: defaultHeartbeat,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// tickInterval returns the heartbeat with a random jitter applied so
// multiple instances do not evaluate the job table in lockstep.
func (c *defaultCoordinator) tickInterval() time.Duration {
	jitter := c.heartbeat / 4
	if jitter <= 0 {
		return c.heartbeat
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for tick jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return c.heartbeat + offset
}

// Start begins the heartbeat loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("starting scheduler coordinator",
		"job_count", len(c.registry.Jobs()),
		"heartbeat", c.heartbeat,
	)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		c.inflight.Wait()
		close(c.done)
		slog.Info("scheduler coordinator shut down")
	}()

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()

	// Evaluate once at startup so a restart does not wait a full tick.
	c.evaluateJobs(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.evaluateJobs(coordCtx)

			// Recalculate interval with new jitter for next iteration
			ticker.Reset(c.tickInterval())
		case <-coordCtx.Done():
			slog.Info("scheduler coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("stopping scheduler coordinator")
		c.cancelFunc()
		// Wait for the loop to exit and in-flight jobs to drain
		<-c.done
	}
	return nil
}

// evaluateJobs checks every registered job's due window and launches an
// attempt for each open one.
func (c *defaultCoordinator) evaluateJobs(ctx context.Context) {
	now := c.cal.Now()

	for _, job := range c.registry.Jobs() {
		lastRun, err := c.ledger.LastRun(ctx, job.Name)
		if err != nil {
			slog.Error("failed to read run ledger", "job", job.Name, "error", err)
			continue
		}

		if !job.Due(now, lastRun) {
			continue
		}

		c.inflight.Add(1)
		go func(job *Job) {
			defer c.inflight.Done()
			// A started run finishes even when the coordinator is
			// shutting down; shutdown only stops new attempts.
			c.attemptJob(context.WithoutCancel(ctx), job)
		}(job)
	}
}

// attemptJob takes the cross-process lock, re-validates the window and
// the gate, and runs the job. The ledger is only touched on success.
func (c *defaultCoordinator) attemptJob(ctx context.Context, job *Job) {
	runID := uuid.NewString()
	log := slog.With("job", job.Name, "run_id", runID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
		}
	}()

	release, acquired, err := c.locker.TryAcquire(ctx, job.Name)
	if err != nil {
		log.Error("failed to acquire job lock", "error", err)
		return
	}
	if !acquired {
		log.Debug("job lock held elsewhere, skipping")
		c.metrics.RecordLockContention(ctx, job.Name)
		return
	}
	defer func() {
		if err := release(ctx); err != nil {
			log.Error("failed to release job lock", "error", err)
		}
	}()

	// Another instance may have run the job between our due check and
	// the lock; the ledger inside the lock is authoritative.
	lastRun, err := c.ledger.LastRun(ctx, job.Name)
	if err != nil {
		log.Error("failed to re-read run ledger", "error", err)
		return
	}
	if !job.Due(c.cal.Now(), lastRun) {
		log.Debug("job no longer due, skipping")
		return
	}

	if job.Gate != nil {
		ready, err := job.Gate(ctx)
		if err != nil {
			log.Error("job gate check failed", "error", err)
			return
		}
		if !ready {
			log.Debug("job gate not ready, skipping")
			c.metrics.RecordGateSkip(ctx, job.Name)
			return
		}
	}

	log.Info("starting job run")
	start := time.Now()

	summary, runErr := job.Run(ctx)
	duration := time.Since(start)
	c.metrics.RecordRunDuration(ctx, job.Name, duration, runErr == nil)

	if runErr != nil {
		// The ledger stays untouched so the next heartbeat retries.
		log.Error("job run failed",
			"duration_ms", duration.Milliseconds(),
			"error", runErr,
		)
		return
	}

	if err := c.ledger.RecordRun(ctx, job.Name, time.Now().UTC()); err != nil {
		log.Error("failed to record job run", "error", err)
		return
	}

	log.Info("job run complete",
		"duration_ms", duration.Milliseconds(),
		"summary", summary,
	)
}
