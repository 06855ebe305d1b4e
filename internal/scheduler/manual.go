package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TriggerOptions controls a manual job run.
type TriggerOptions struct {
	// MarkRun records the run in the ledger as if the scheduler ran it,
	// closing the job's current window.
	MarkRun bool

	// SkipGate runs the job even when its readiness gate declines.
	SkipGate bool
}

// Trigger runs one job by name immediately, bypassing its due window.
// The cross-process lock is still honored so a manual run never
// overlaps a scheduled one.
func Trigger(
	ctx context.Context,
	registry *Registry,
	ledger JobLedger,
	jobLocker JobLocker,
	name string,
	opts TriggerOptions,
) (Summary, error) {
	job, ok := registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}

	release, acquired, err := jobLocker.TryAcquire(ctx, job.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("job %s is running elsewhere", job.Name)
	}
	defer func() {
		if err := release(ctx); err != nil {
			slog.Error("failed to release job lock", "job", job.Name, "error", err)
		}
	}()

	if job.Gate != nil && !opts.SkipGate {
		ready, err := job.Gate(ctx)
		if err != nil {
			return nil, fmt.Errorf("gate check failed: %w", err)
		}
		if !ready {
			return Summary{"skipped": true, "note": "gate not ready"}, nil
		}
	}

	summary, err := job.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("job %s failed: %w", job.Name, err)
	}

	if opts.MarkRun {
		if err := ledger.RecordRun(ctx, job.Name, time.Now().UTC()); err != nil {
			return summary, fmt.Errorf("job ran but recording it failed: %w", err)
		}
	}

	return summary, nil
}
