// Package locker provides cooperative cross-process job locks built on
// Postgres session advisory locks.
//
// Advisory locks are scoped to the database session that took them, so
// each acquisition pins a dedicated pool connection until it is
// released. Contention is non-blocking: a loser sees acquired=false and
// moves on.
package locker

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReleaseFunc releases a held lock and returns the pinned connection to
// the pool. It is safe to call exactly once.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires named advisory locks.
type Locker struct {
	pool *pgxpool.Pool
}

// New creates a Locker backed by the given pool.
func New(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// TryAcquire attempts to take the advisory lock for name without
// blocking. On success it returns a release function that must be
// called when the protected work is done; the underlying connection
// stays pinned until then. When the lock is held elsewhere it returns
// acquired=false and no release function.
func (l *Locker) TryAcquire(ctx context.Context, name string) (ReleaseFunc, bool, error) {
	key := lockKey(name)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection for lock %s: %w", name, err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to try advisory lock %s: %w", name, err)
	}

	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		defer conn.Release()

		var unlocked bool
		if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked); err != nil {
			return fmt.Errorf("failed to release advisory lock %s: %w", name, err)
		}
		if !unlocked {
			return fmt.Errorf("advisory lock %s was not held at release", name)
		}
		return nil
	}

	return release, true, nil
}

// lockKey derives a stable non-negative 32-bit advisory lock key from a
// job name.
func lockKey(name string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int32(h.Sum32() & 0x7fffffff)
}
