// Package scheduler runs the pool's recurring jobs on a shared
// heartbeat.
//
// Each heartbeat evaluates every registered job: the due window is
// computed from the pool-local clock and the run ledger, the
// cross-process lock is taken, and only then is the job's readiness
// gate consulted against live database state. A job that runs records
// itself in the ledger so the window stays closed until it reopens.
package scheduler

import (
	"context"
	"time"
)

// Summary is the structured result a job run reports for logging.
type Summary map[string]any

// Job is one schedulable unit of work.
type Job struct {
	// Name identifies the job in the ledger, the lock table, and logs.
	Name string

	// Due reports whether the job's window is open. now is pool-local
	// and lastRun is the ledger entry, nil when the job has never run.
	// Due must be cheap and side-effect free; it runs every heartbeat.
	Due func(now time.Time, lastRun *time.Time) bool

	// Gate is an optional readiness check consulted after the lock is
	// held. A false result skips the run without recording it, so the
	// job is retried on the next heartbeat. nil means always ready.
	Gate func(ctx context.Context) (bool, error)

	// Run performs the work and reports what happened.
	Run func(ctx context.Context) (Summary, error)
}
