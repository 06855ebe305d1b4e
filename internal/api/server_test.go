package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonpool/pigeonpool-sync-server/database"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/ledger"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/scheduler"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/store"
)

func TestHealthAndVersion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewServer(Deps{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var version map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
	assert.NotEmpty(t, version["version"])
	assert.NotEmpty(t, version["go_version"])
}

func TestReadinessAndStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	led := ledger.New(pool)

	deps := Deps{
		Pool:     pool,
		Store:    store.New(pool, "America/Los_Angeles"),
		Ledger:   led,
		JobNames: []string{scheduler.JobKickoffSync, scheduler.JobScoreSync},
	}
	srv := httptest.NewServer(NewServer(deps, WithMiddlewares(LoggingMiddleware)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Seed a locked and an open week plus one ledger entry.
	_, err = pool.Exec(ctx,
		`INSERT INTO weeks (week_number, lock_at)
		 VALUES (3, now() - interval '2 days'), (4, now() + interval '5 days')`)
	require.NoError(t, err)

	ranAt := time.Date(2025, 9, 21, 13, 0, 0, 0, time.UTC)
	require.NoError(t, led.RecordRun(ctx, scheduler.JobScoreSync, ranAt))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	require.NotNil(t, status.CurrentWeek)
	assert.Equal(t, int32(3), *status.CurrentWeek)
	require.NotNil(t, status.UpcomingWeek)
	assert.Equal(t, int32(4), *status.UpcomingWeek)

	require.Len(t, status.Jobs, 2)
	assert.Equal(t, scheduler.JobKickoffSync, status.Jobs[0].Name)
	assert.Nil(t, status.Jobs[0].LastRunAt)
	assert.Equal(t, scheduler.JobScoreSync, status.Jobs[1].Name)
	require.NotNil(t, status.Jobs[1].LastRunAt)
	assert.True(t, status.Jobs[1].LastRunAt.Equal(ranAt))
}
