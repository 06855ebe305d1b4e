package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonpool/pigeonpool-sync-server/database"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/feed"
)

// fakeFeed serves canned snapshots keyed by week.
type fakeFeed struct {
	snapshots map[int]*feed.Snapshot
	calls     int
}

func (f *fakeFeed) Scoreboard(_ context.Context, _ int, week int) (*feed.Snapshot, error) {
	f.calls++
	if s, ok := f.snapshots[week]; ok {
		return s, nil
	}
	return &feed.Snapshot{Week: week}, nil
}

func intPtr(v int32) *int32 { return &v }

func testEngine(t *testing.T, pool *pgxpool.Pool, f feed.Client) *Engine {
	t.Helper()
	cal, err := calendar.New("America/Los_Angeles")
	require.NoError(t, err)
	return NewEngine(pool, f, cal)
}

// week1Events is a Thursday opener plus a Sunday game for 2025 week 1.
func week1Events() []feed.Event {
	return []feed.Event{
		{
			ExternalID: "401771789",
			Kickoff:    time.Date(2025, 9, 5, 0, 20, 0, 0, time.UTC),
			Status:     feed.StatusScheduled,
			HomeAbbr:   "PHI", HomeName: "Philadelphia Eagles",
			AwayAbbr: "DAL", AwayName: "Dallas Cowboys",
		},
		{
			ExternalID: "401771790",
			Kickoff:    time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC),
			Status:     feed.StatusScheduled,
			HomeAbbr:   "KC", HomeName: "Kansas City Chiefs",
			AwayAbbr: "LAC", AwayName: "Los Angeles Chargers",
		},
	}
}

func TestPopulateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	f := &fakeFeed{snapshots: map[int]*feed.Snapshot{
		1: {Week: 1, Events: week1Events()},
	}}
	engine := testEngine(t, pool, f)

	changed, err := engine.Populate(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	// Lock time: Wednesday Sep 3 23:59:59 Pacific before the Thursday
	// opener, stored in UTC.
	var lockAt time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT lock_at FROM weeks WHERE week_number = 1`).Scan(&lockAt))
	wantLock := time.Date(2025, 9, 4, 6, 59, 59, 0, time.UTC)
	assert.True(t, lockAt.Equal(wantLock), "got %v, want %v", lockAt, wantLock)

	var games int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM games WHERE week_number = 1`).Scan(&games))
	assert.Equal(t, 2, games)

	var status string
	var externalID int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT status, external_event_id FROM games
		 WHERE week_number = 1 AND home_abbr = 'PHI'`).Scan(&status, &externalID))
	assert.Equal(t, "scheduled", status)
	assert.Equal(t, int64(401771789), externalID)

	// Replaying the identical feed changes nothing.
	changed, err = engine.Populate(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestPopulateSkipsEmptyWeeks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	f := &fakeFeed{snapshots: map[int]*feed.Snapshot{
		2: {Week: 2, Events: week1Events()},
	}}
	engine := testEngine(t, pool, f)

	changed, err := engine.Populate(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 3, f.calls)

	var weeks int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM weeks`).Scan(&weeks))
	assert.Equal(t, 1, weeks)
}

func TestRefreshScoresLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	events := week1Events()
	f := &fakeFeed{snapshots: map[int]*feed.Snapshot{
		1: {Week: 1, Events: events},
	}}
	engine := testEngine(t, pool, f)

	_, err := engine.Populate(ctx, 1, 1)
	require.NoError(t, err)

	// Halftime: first game live, second not started.
	events[0].Status = feed.StatusInProgress
	events[0].HomeScore = intPtr(14)
	events[0].AwayScore = intPtr(10)

	updated, err := engine.RefreshScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var status string
	var home, away *int32
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT status, home_score, away_score FROM games
		 WHERE week_number = 1 AND home_abbr = 'PHI'`).Scan(&status, &home, &away))
	assert.Equal(t, "in_progress", status)
	require.NotNil(t, home)
	assert.Equal(t, int32(14), *home)
	require.NotNil(t, away)
	assert.Equal(t, int32(10), *away)

	// Same snapshot again: nothing changes.
	updated, err = engine.RefreshScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	// Final whistle on both games.
	events[0].Status = feed.StatusFinal
	events[0].HomeScore = intPtr(27)
	events[0].AwayScore = intPtr(24)
	events[1].Status = feed.StatusFinal
	events[1].HomeScore = intPtr(31)
	events[1].AwayScore = intPtr(17)

	updated, err = engine.RefreshScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM games WHERE week_number = 1 AND status <> 'final'`).Scan(&remaining))
	assert.Equal(t, 0, remaining)
}

func TestRefreshScoresBackfillsEventID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// A hand-entered game with no feed id yet.
	_, err := pool.Exec(ctx,
		`INSERT INTO weeks (week_number, lock_at) VALUES (1, now() - interval '1 day')`)
	require.NoError(t, err)
	for _, team := range []string{"PHI", "DAL"} {
		_, err = pool.Exec(ctx,
			`INSERT INTO teams (abbr, name) VALUES ($1, $1)`, team)
		require.NoError(t, err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO games (week_number, home_abbr, away_abbr, kickoff_at)
		 VALUES (1, 'PHI', 'DAL', now())`)
	require.NoError(t, err)

	events := week1Events()[:1]
	events[0].Status = feed.StatusFinal
	events[0].HomeScore = intPtr(20)
	events[0].AwayScore = intPtr(17)

	f := &fakeFeed{snapshots: map[int]*feed.Snapshot{
		1: {Week: 1, Events: events},
	}}
	engine := testEngine(t, pool, f)

	updated, err := engine.RefreshScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var externalID int64
	var status string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT external_event_id, status FROM games
		 WHERE week_number = 1 AND home_abbr = 'PHI'`).Scan(&externalID, &status))
	assert.Equal(t, int64(401771789), externalID)
	assert.Equal(t, "final", status)

	// The id is set once and never rewritten: a later snapshot with a
	// different id for the same matchup matches by id first, fails, and
	// the triple fallback keeps the original id.
	events[0].ExternalID = "999999999"
	events[0].HomeScore = intPtr(23)

	updated, err = engine.RefreshScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT external_event_id FROM games
		 WHERE week_number = 1 AND home_abbr = 'PHI'`).Scan(&externalID))
	assert.Equal(t, int64(401771789), externalID)
}

func TestRefreshKickoffs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := database.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	events := week1Events()
	f := &fakeFeed{snapshots: map[int]*feed.Snapshot{
		1: {Week: 1, Events: events},
	}}
	engine := testEngine(t, pool, f)

	_, err := engine.Populate(ctx, 1, 1)
	require.NoError(t, err)

	// Nothing moved yet.
	updated, err := engine.RefreshKickoffs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	// Sunday game flexed to the late window.
	moved := events[1].Kickoff.Add(3*time.Hour + 25*time.Minute)
	events[1].Kickoff = moved

	updated, err = engine.RefreshKickoffs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var kickoff time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT kickoff_at FROM games WHERE week_number = 1 AND home_abbr = 'KC'`).Scan(&kickoff))
	assert.True(t, kickoff.Equal(moved))
}

func TestPopulateRejectsInvalidRange(t *testing.T) {
	t.Parallel()

	engine := testEngine(t, nil, &fakeFeed{})

	for _, r := range [][2]int{{0, 5}, {3, 2}} {
		_, err := engine.Populate(context.Background(), r[0], r[1])
		require.Error(t, err, fmt.Sprintf("range %v", r))
	}
}
