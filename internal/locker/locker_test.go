package locker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonpool/pigeonpool-sync-server/database"
)

func TestLockKeyStableAndNonNegative(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lockKey("score_sync"), lockKey("score_sync"))
	assert.NotEqual(t, lockKey("score_sync"), lockKey("kickoff_sync"))

	for _, name := range []string{"kickoff_sync", "score_sync", "sunday_wrap", "monday_wrap", "tuesday_warn"} {
		assert.GreaterOrEqual(t, lockKey(name), int32(0))
	}
}

func TestTryAcquireMutualExclusion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := New(pool)

	release, acquired, err := l.TryAcquire(ctx, "score_sync")
	require.NoError(t, err)
	require.True(t, acquired)

	// While held, a second attempt on a different session loses.
	_, again, err := l.TryAcquire(ctx, "score_sync")
	require.NoError(t, err)
	assert.False(t, again)

	// A different job name is an independent lock.
	otherRelease, other, err := l.TryAcquire(ctx, "kickoff_sync")
	require.NoError(t, err)
	require.True(t, other)
	require.NoError(t, otherRelease(ctx))

	require.NoError(t, release(ctx))

	// After release the lock is free again.
	release2, reacquired, err := l.TryAcquire(ctx, "score_sync")
	require.NoError(t, err)
	require.True(t, reacquired)
	require.NoError(t, release2(ctx))
}

func TestTryAcquireSingleWinnerUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := New(pool)

	const contenders = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		releases []ReleaseFunc
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, acquired, err := l.TryAcquire(ctx, "sunday_wrap")
			assert.NoError(t, err)
			if acquired {
				mu.Lock()
				winners++
				releases = append(releases, release)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	for _, release := range releases {
		require.NoError(t, release(ctx))
	}
}
