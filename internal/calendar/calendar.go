// Package calendar provides pool-local time arithmetic.
//
// All due-window and lock decisions are made in a single configured
// timezone regardless of where the server runs. The zero value is not
// usable; construct with New.
package calendar

import (
	"fmt"
	"time"
)

// Calendar resolves wall-clock boundaries in the pool timezone.
type Calendar struct {
	loc *time.Location
}

// New loads the given IANA timezone and returns a Calendar bound to it.
func New(timezone string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc}, nil
}

// Location returns the pool timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the pool timezone.
func (c *Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// In converts t to the pool timezone.
func (c *Calendar) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// StartOfWeek returns midnight of the Sunday at or before t, in the
// pool timezone.
func (c *Calendar) StartOfWeek(t time.Time) time.Time {
	local := t.In(c.loc)
	dow := int(local.Weekday())
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return day.AddDate(0, 0, -dow)
}

// MondayStart returns midnight of the Monday of t's week.
func (c *Calendar) MondayStart(t time.Time) time.Time {
	return c.StartOfWeek(t).AddDate(0, 0, 1)
}

// TuesdayStart returns midnight of the Tuesday of t's week.
func (c *Calendar) TuesdayStart(t time.Time) time.Time {
	return c.StartOfWeek(t).AddDate(0, 0, 2)
}

// SameLocalDay reports whether a and b fall on the same calendar day in
// the pool timezone.
func (c *Calendar) SameLocalDay(a, b time.Time) bool {
	la, lb := a.In(c.loc), b.In(c.loc)
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}

// LockTime computes when picks close for a week whose earliest kickoff
// is earliestKickoff: 23:59:59 on the Wednesday strictly before the
// kickoff, in the pool timezone. A kickoff that itself lands on a
// Wednesday locks the week before.
func (c *Calendar) LockTime(earliestKickoff time.Time) time.Time {
	local := earliestKickoff.In(c.loc)

	daysSinceWed := (int(local.Weekday()) - int(time.Wednesday) + 7) % 7
	if daysSinceWed == 0 {
		daysSinceWed = 7
	}

	wed := local.AddDate(0, 0, -daysSinceWed)
	return time.Date(wed.Year(), wed.Month(), wed.Day(), 23, 59, 59, 0, c.loc)
}

// SeasonYear returns the calendar year to use for the feed's year
// parameter. The pool runs within a single calendar year, so the UTC
// year is sufficient.
func (c *Calendar) SeasonYear(t time.Time) int {
	return t.UTC().Year()
}
