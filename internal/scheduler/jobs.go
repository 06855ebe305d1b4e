package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/calendar"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/notify"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/reconcile"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/store"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/telemetry"
)

// Job names
const (
	JobKickoffSync = "kickoff_sync"
	JobScoreSync   = "score_sync"
	JobSundayWrap  = "sunday_wrap"
	JobMondayWrap  = "monday_wrap"
	JobTuesdayWarn = "tuesday_warn"
)

const (
	// wrapHour is the local hour after which the Sunday and Monday wrap
	// windows open
	wrapHour = 18

	// lastRegularWeek is the final week of the regular season
	lastRegularWeek = 18
)

// Deps carries the collaborators the built-in jobs run against.
type Deps struct {
	Store  *store.Store
	Engine *reconcile.Engine
	Sender notify.Sender
	Cal    *calendar.Calendar

	KickoffSyncHour  int
	TueWarningHour   int
	LivePollInterval time.Duration

	ReconcileMetrics *telemetry.ReconcileMetrics
}

// DefaultJobs builds the registry of the five built-in jobs.
func DefaultJobs(deps Deps) (*Registry, error) {
	registry := NewRegistry()

	jobs := []*Job{
		kickoffSyncJob(deps),
		scoreSyncJob(deps),
		sundayWrapJob(deps),
		mondayWrapJob(deps),
		tuesdayWarnJob(deps),
	}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, fmt.Errorf("failed to build job registry: %w", err)
		}
	}

	return registry, nil
}

// kickoffSyncJob refreshes kickoff times once a day for the upcoming
// week and the one after it, catching flexed games before lock.
func kickoffSyncJob(deps Deps) *Job {
	return &Job{
		Name: JobKickoffSync,
		Due: func(now time.Time, lastRun *time.Time) bool {
			if now.Hour() < deps.KickoffSyncHour {
				return false
			}
			return lastRun == nil || !deps.Cal.SameLocalDay(*lastRun, now)
		},
		Run: func(ctx context.Context) (Summary, error) {
			upcoming, err := deps.Store.UpcomingWeek(ctx)
			if err != nil {
				return nil, err
			}
			if upcoming == nil {
				return Summary{"weeks": []int{}, "kickoffs_updated": 0, "note": "no upcoming week"}, nil
			}

			weeks := []int{int(*upcoming)}
			if *upcoming < lastRegularWeek {
				weeks = append(weeks, int(*upcoming)+1)
			}

			total := 0
			for _, week := range weeks {
				updated, err := deps.Engine.RefreshKickoffs(ctx, week)
				if err != nil {
					return nil, fmt.Errorf("week %d: %w", week, err)
				}
				total += updated
			}
			deps.ReconcileMetrics.RecordRowsChanged(ctx, "refresh_kickoffs", int64(total))

			return Summary{"weeks": weeks, "kickoffs_updated": total}, nil
		},
	}
}

// scoreSyncJob polls scores at the live interval whenever any game has
// kicked off and is not final.
func scoreSyncJob(deps Deps) *Job {
	return &Job{
		Name: JobScoreSync,
		Due: func(now time.Time, lastRun *time.Time) bool {
			return lastRun == nil || now.Sub(*lastRun) >= deps.LivePollInterval
		},
		Gate: deps.Store.AnyLiveGames,
		Run: func(ctx context.Context) (Summary, error) {
			current, err := deps.Store.CurrentWeek(ctx)
			if err != nil {
				return nil, err
			}
			if current == nil {
				return Summary{"games_updated": 0, "note": "no current week"}, nil
			}

			updated, err := deps.Engine.RefreshScores(ctx, int(*current))
			if err != nil {
				return nil, err
			}
			deps.ReconcileMetrics.RecordRowsChanged(ctx, "refresh_scores", int64(updated))

			return Summary{"week": int(*current), "games_updated": updated}, nil
		},
	}
}

// sundayWrapJob sends the interim-results summary to all players on
// Sunday evening once every Sunday game is final.
func sundayWrapJob(deps Deps) *Job {
	return &Job{
		Name: JobSundayWrap,
		Due: func(now time.Time, lastRun *time.Time) bool {
			if now.Weekday() != time.Sunday || now.Hour() < wrapHour {
				return false
			}
			return lastRun == nil || deps.Cal.In(*lastRun).Before(deps.Cal.StartOfWeek(now))
		},
		Gate: deps.Store.SundayGamesFinalWeekOpen,
		Run: func(ctx context.Context) (Summary, error) {
			return sendToAll(ctx, deps, notify.InterimResults)
		},
	}
}

// mondayWrapJob sends the final weekly results to all players on Monday
// evening once the whole week is final.
func mondayWrapJob(deps Deps) *Job {
	return &Job{
		Name: JobMondayWrap,
		Due: func(now time.Time, lastRun *time.Time) bool {
			if now.Weekday() != time.Monday || now.Hour() < wrapHour {
				return false
			}
			return lastRun == nil || deps.Cal.In(*lastRun).Before(deps.Cal.MondayStart(now))
		},
		Gate: deps.Store.AllGamesFinal,
		Run: func(ctx context.Context) (Summary, error) {
			return sendToAll(ctx, deps, notify.FinalResults)
		},
	}
}

// tuesdayWarnJob reminds only the players who still owe picks, on
// Tuesday before the Wednesday lock.
func tuesdayWarnJob(deps Deps) *Job {
	return &Job{
		Name: JobTuesdayWarn,
		Due: func(now time.Time, lastRun *time.Time) bool {
			if now.Weekday() != time.Tuesday || now.Hour() < deps.TueWarningHour {
				return false
			}
			return lastRun == nil || deps.Cal.In(*lastRun).Before(deps.Cal.TuesdayStart(now))
		},
		Gate: deps.Store.AnyMissingPicks,
		Run: func(ctx context.Context) (Summary, error) {
			emails, err := deps.Store.MissingPickEmails(ctx)
			if err != nil {
				return nil, err
			}
			if len(emails) == 0 {
				return Summary{"recipients": 0, "note": "no missing picks"}, nil
			}

			if err := deps.Sender.Send(ctx, emails, notify.PickReminder()); err != nil {
				return nil, err
			}
			return Summary{"recipients": len(emails)}, nil
		},
	}
}

// sendToAll resolves the current week, composes the message for it, and
// sends it to every player. Skips quietly when no week is locked yet.
func sendToAll(ctx context.Context, deps Deps, compose func(int32) notify.Message) (Summary, error) {
	current, err := deps.Store.CurrentWeek(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return Summary{"recipients": 0, "note": "no current week"}, nil
	}

	emails, err := deps.Store.AllPlayerEmails(ctx)
	if err != nil {
		return nil, err
	}

	if err := deps.Sender.Send(ctx, emails, compose(*current)); err != nil {
		return nil, err
	}
	return Summary{"week": int(*current), "recipients": len(emails)}, nil
}
