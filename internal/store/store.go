// Package store provides the read-side queries the scheduler gates on.
//
// Week resolution follows the lock clock: the current week is the
// latest week whose lock has passed, and the upcoming week is the
// earliest still open for picks. Either can be absent in preseason or
// after the last lock of the season.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs pool-state queries against the database.
type Store struct {
	pool     *pgxpool.Pool
	timezone string
}

// New creates a Store. The timezone is the pool timezone used when a
// query needs a local calendar day (IANA name).
func New(pool *pgxpool.Pool, timezone string) *Store {
	return &Store{pool: pool, timezone: timezone}
}

// CurrentWeek returns the latest week whose lock time has passed, or
// nil when no week is locked yet.
func (s *Store) CurrentWeek(ctx context.Context) (*int32, error) {
	var week *int32
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(week_number) FROM weeks WHERE lock_at <= now()`,
	).Scan(&week)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current week: %w", err)
	}
	return week, nil
}

// UpcomingWeek returns the earliest week still open for picks, or nil
// when every week has locked.
func (s *Store) UpcomingWeek(ctx context.Context) (*int32, error) {
	var week *int32
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(week_number) FROM weeks WHERE lock_at > now()`,
	).Scan(&week)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upcoming week: %w", err)
	}
	return week, nil
}

// AnyLiveGames reports whether any game has kicked off but is not yet
// final, across all weeks.
func (s *Store) AnyLiveGames(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM games
		   WHERE kickoff_at <= now() AND status <> 'final'
		 )`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for live games: %w", err)
	}
	return exists, nil
}

// SundayGamesFinalWeekOpen reports whether every Sunday game of the
// current week is final while the week as a whole still has games
// outstanding. Sunday is judged in the pool timezone.
func (s *Store) SundayGamesFinalWeekOpen(ctx context.Context) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`WITH current_week AS (
		   SELECT MAX(week_number) AS w FROM weeks WHERE lock_at <= now()
		 )
		 SELECT
		   (NOT EXISTS (
		     SELECT 1 FROM games
		     WHERE week_number = (SELECT w FROM current_week)
		       AND EXTRACT(ISODOW FROM (kickoff_at AT TIME ZONE $1)) = 7
		       AND status <> 'final'
		   ))
		   AND EXISTS (
		     SELECT 1 FROM games
		     WHERE week_number = (SELECT w FROM current_week)
		       AND status <> 'final'
		   )`,
		s.timezone,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check sunday completion: %w", err)
	}
	return ok, nil
}

// AllGamesFinal reports whether every game of the current week is
// final. A week with no games counts as final.
func (s *Store) AllGamesFinal(ctx context.Context) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`WITH current_week AS (
		   SELECT MAX(week_number) AS w FROM weeks WHERE lock_at <= now()
		 )
		 SELECT NOT EXISTS (
		   SELECT 1 FROM games
		   WHERE week_number = (SELECT w FROM current_week)
		     AND status <> 'final'
		 )`,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check week completion: %w", err)
	}
	return ok, nil
}

// AnyMissingPicks reports whether any player still owes a pick for the
// upcoming week.
func (s *Store) AnyMissingPicks(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`WITH next_week AS (
		   SELECT MIN(week_number) AS w FROM weeks WHERE lock_at > now()
		 )
		 SELECT EXISTS (
		   SELECT 1
		   FROM v_picks_filled f
		   JOIN games g ON g.game_id = f.game_id
		   WHERE f.is_made = FALSE
		     AND g.week_number = (SELECT w FROM next_week)
		 )`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for missing picks: %w", err)
	}
	return exists, nil
}

// AllPlayerEmails returns every player's email in roster order.
func (s *Store) AllPlayerEmails(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email FROM players ORDER BY pigeon_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list player emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

// MissingPickEmails returns the distinct emails of players who still
// owe picks for the upcoming week.
func (s *Store) MissingPickEmails(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`WITH next_week AS (
		   SELECT MIN(week_number) AS w FROM weeks WHERE lock_at > now()
		 )
		 SELECT DISTINCT pl.email
		 FROM v_picks_filled f
		 JOIN players pl ON pl.pigeon_number = f.pigeon_number
		 JOIN games g ON g.game_id = f.game_id
		 WHERE f.is_made = FALSE
		   AND g.week_number = (SELECT w FROM next_week)
		 ORDER BY pl.email`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing-pick emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEmails(rows rowScanner) ([]string, error) {
	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read emails: %w", err)
	}
	return emails, nil
}
