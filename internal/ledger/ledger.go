// Package ledger records when each scheduled job last ran.
//
// The ledger is the shared memory behind every once-per-window due
// check: a job is due when the window is open and the ledger shows no
// run inside it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger reads and writes per-job run timestamps.
type Ledger struct {
	pool *pgxpool.Pool
}

// New creates a Ledger backed by the given pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// LastRun returns the most recent recorded run for jobName, or nil if
// the job has never run.
func (l *Ledger) LastRun(ctx context.Context, jobName string) (*time.Time, error) {
	var lastAt time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT last_at FROM scheduler_runs WHERE job_name = $1`,
		jobName,
	).Scan(&lastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run for %s: %w", jobName, err)
	}
	return &lastAt, nil
}

// RecordRun stamps jobName as having run at the given time. The write
// is an atomic upsert so concurrent recorders cannot race on insert.
func (l *Ledger) RecordRun(ctx context.Context, jobName string, at time.Time) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO scheduler_runs (job_name, last_at)
		 VALUES ($1, $2)
		 ON CONFLICT (job_name) DO UPDATE SET last_at = EXCLUDED.last_at`,
		jobName, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record run for %s: %w", jobName, err)
	}
	return nil
}
