// Package reconcile converges the games tables toward the external
// scoreboard feed.
//
// Every write is change-guarded: an update only touches a row when a
// tracked column actually differs, so the returned change counts are
// real deltas and replaying an identical feed is a no-op. Matching
// prefers the feed's event id and falls back to the
// (week, home, away) triple for rows that predate id backfill.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/feed"
)

// Engine reconciles schedule, kickoff, and score state for one week at
// a time.
type Engine struct {
	pool   *pgxpool.Pool
	client feed.Client
	cal    *calendar.Calendar
}

// NewEngine creates an Engine.
func NewEngine(pool *pgxpool.Pool, client feed.Client, cal *calendar.Calendar) *Engine {
	return &Engine{
		pool:   pool,
		client: client,
		cal:    cal,
	}
}

// Populate loads or refreshes the schedule for weeks fromWeek through
// toWeek inclusive. Each week is committed in its own transaction so a
// failing week does not roll back the ones before it. Weeks the feed
// has no events for are skipped. Returns the total number of game rows
// inserted or changed.
func (e *Engine) Populate(ctx context.Context, fromWeek, toWeek int) (int, error) {
	if fromWeek < 1 || toWeek < fromWeek {
		return 0, fmt.Errorf("invalid week range %d..%d", fromWeek, toWeek)
	}

	season := e.cal.SeasonYear(time.Now())
	total := 0

	for week := fromWeek; week <= toWeek; week++ {
		changed, err := e.populateWeek(ctx, season, week)
		if err != nil {
			return total, fmt.Errorf("failed to populate week %d: %w", week, err)
		}
		total += changed
	}

	return total, nil
}

func (e *Engine) populateWeek(ctx context.Context, season, week int) (int, error) {
	snapshot, err := e.client.Scoreboard(ctx, season, week)
	if err != nil {
		return 0, err
	}
	if len(snapshot.Events) == 0 {
		slog.Info("no feed events for week, skipping", "season", season, "week", week)
		return 0, nil
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	// The week row goes first so game inserts can satisfy the FK. Lock
	// time derives from the earliest kickoff of the week.
	earliest := snapshot.Events[0].Kickoff
	for _, event := range snapshot.Events[1:] {
		if event.Kickoff.Before(earliest) {
			earliest = event.Kickoff
		}
	}
	lockAt := e.cal.LockTime(earliest).UTC()

	if _, err := tx.Exec(ctx,
		`INSERT INTO weeks (week_number, lock_at)
		 VALUES ($1, $2)
		 ON CONFLICT (week_number) DO UPDATE SET lock_at = EXCLUDED.lock_at`,
		week, lockAt,
	); err != nil {
		return 0, fmt.Errorf("failed to upsert week: %w", err)
	}

	changed := 0
	for _, event := range snapshot.Events {
		externalID, ok := e.externalID(event, week)
		if !ok {
			continue
		}

		for _, team := range []struct{ abbr, name string }{
			{event.HomeAbbr, event.HomeName},
			{event.AwayAbbr, event.AwayName},
		} {
			if _, err := tx.Exec(ctx,
				`INSERT INTO teams (abbr, name)
				 VALUES ($1, $2)
				 ON CONFLICT (abbr) DO UPDATE SET name = EXCLUDED.name
				 WHERE teams.name IS DISTINCT FROM EXCLUDED.name`,
				team.abbr, team.name,
			); err != nil {
				return 0, fmt.Errorf("failed to upsert team %s: %w", team.abbr, err)
			}
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO games (
			     week_number, kickoff_at, home_abbr, away_abbr, status,
			     home_score, away_score, external_event_id
			 )
			 VALUES ($1, $2, $3, $4, 'scheduled', NULL, NULL, $5)
			 ON CONFLICT (week_number, home_abbr, away_abbr)
			 DO UPDATE SET
			     kickoff_at        = EXCLUDED.kickoff_at,
			     external_event_id = COALESCE(games.external_event_id, EXCLUDED.external_event_id),
			     updated_at        = now()
			 WHERE games.kickoff_at IS DISTINCT FROM EXCLUDED.kickoff_at
			    OR (games.external_event_id IS NULL AND EXCLUDED.external_event_id IS NOT NULL)`,
			week, event.Kickoff, event.HomeAbbr, event.AwayAbbr, externalID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert game %s@%s: %w", event.AwayAbbr, event.HomeAbbr, err)
		}
		changed += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return changed, nil
}

// RefreshScores pulls scores and statuses for the given week and
// applies them to matching games. Returns the number of games whose
// score or status actually changed.
func (e *Engine) RefreshScores(ctx context.Context, week int) (int, error) {
	season := e.cal.SeasonYear(time.Now())
	snapshot, err := e.client.Scoreboard(ctx, season, week)
	if err != nil {
		return 0, err
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	updated := 0
	for _, event := range snapshot.Events {
		externalID, ok := e.externalID(event, week)
		if !ok {
			continue
		}

		tag, err := tx.Exec(ctx,
			`UPDATE games
			 SET home_score = $2,
			     away_score = $3,
			     status     = $4,
			     updated_at = now()
			 WHERE external_event_id = $1
			   AND (home_score IS DISTINCT FROM $2
			     OR away_score IS DISTINCT FROM $3
			     OR status IS DISTINCT FROM $4::game_status)`,
			externalID, event.HomeScore, event.AwayScore, string(event.Status),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update scores by event id: %w", err)
		}
		rows := int(tag.RowsAffected())

		if rows == 0 {
			// The row may predate id backfill; match by triple and set
			// the id while we are here.
			tag, err = tx.Exec(ctx,
				`UPDATE games
				 SET home_score        = $4,
				     away_score        = $5,
				     status            = $6,
				     external_event_id = COALESCE(external_event_id, $7),
				     updated_at        = now()
				 WHERE week_number = $1
				   AND home_abbr = $2
				   AND away_abbr = $3
				   AND (home_score IS DISTINCT FROM $4
				     OR away_score IS DISTINCT FROM $5
				     OR status IS DISTINCT FROM $6::game_status
				     OR external_event_id IS NULL)`,
				week, event.HomeAbbr, event.AwayAbbr,
				event.HomeScore, event.AwayScore, string(event.Status), externalID,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to update scores by matchup: %w", err)
			}
			rows = int(tag.RowsAffected())
		}

		updated += rows
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, nil
}

// RefreshKickoffs pulls the schedule for the given week and updates
// kickoff times for any game that moved. Returns the number of games
// whose kickoff changed.
func (e *Engine) RefreshKickoffs(ctx context.Context, week int) (int, error) {
	season := e.cal.SeasonYear(time.Now())
	snapshot, err := e.client.Scoreboard(ctx, season, week)
	if err != nil {
		return 0, err
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	updated := 0
	for _, event := range snapshot.Events {
		externalID, ok := e.externalID(event, week)
		if !ok {
			continue
		}

		tag, err := tx.Exec(ctx,
			`UPDATE games
			 SET kickoff_at = $2,
			     updated_at = now()
			 WHERE external_event_id = $1
			   AND kickoff_at IS DISTINCT FROM $2`,
			externalID, event.Kickoff,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update kickoff by event id: %w", err)
		}
		rows := int(tag.RowsAffected())

		if rows == 0 {
			tag, err = tx.Exec(ctx,
				`UPDATE games
				 SET kickoff_at        = $4,
				     external_event_id = COALESCE(external_event_id, $5),
				     updated_at        = now()
				 WHERE week_number = $1
				   AND home_abbr = $2
				   AND away_abbr = $3
				   AND kickoff_at IS DISTINCT FROM $4`,
				week, event.HomeAbbr, event.AwayAbbr, event.Kickoff, externalID,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to update kickoff by matchup: %w", err)
			}
			rows = int(tag.RowsAffected())
		}

		updated += rows
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, nil
}

// externalID parses the feed's numeric event id. An unparseable id is
// logged and the event skipped; one bad item must not abort the week.
func (*Engine) externalID(event feed.Event, week int) (int64, bool) {
	id, err := strconv.ParseInt(event.ExternalID, 10, 64)
	if err != nil {
		slog.Warn("skipping feed event with non-numeric id",
			"event_id", event.ExternalID,
			"week", week,
			"matchup", event.AwayAbbr+"@"+event.HomeAbbr,
		)
		return 0, false
	}
	return id, true
}
