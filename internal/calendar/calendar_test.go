package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := New("America/Los_Angeles")
	require.NoError(t, err)
	return cal
}

func TestNewInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := New("Not/AZone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not/AZone")
}

func TestLockTime(t *testing.T) {
	t.Parallel()

	cal := mustCalendar(t)

	tests := []struct {
		name    string
		kickoff time.Time
		want    time.Time
	}{
		{
			// 2025 week 1 opener: Thursday Sep 4, 17:20 Pacific
			name:    "thursday kickoff locks the night before",
			kickoff: time.Date(2025, 9, 5, 0, 20, 0, 0, time.UTC),
			want:    time.Date(2025, 9, 3, 23, 59, 59, 0, cal.Location()),
		},
		{
			name:    "sunday kickoff locks the previous wednesday",
			kickoff: time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 9, 3, 23, 59, 59, 0, cal.Location()),
		},
		{
			name:    "monday night kickoff locks the previous wednesday",
			kickoff: time.Date(2025, 9, 9, 0, 15, 0, 0, time.UTC),
			want:    time.Date(2025, 9, 3, 23, 59, 59, 0, cal.Location()),
		},
		{
			// A kickoff on Wednesday must lock a full week earlier, not
			// the same day.
			name:    "wednesday kickoff locks seven days earlier",
			kickoff: time.Date(2025, 12, 25, 2, 0, 0, 0, time.UTC), // Wed Dec 24 18:00 Pacific
			want:    time.Date(2025, 12, 17, 23, 59, 59, 0, cal.Location()),
		},
		{
			// UTC date is Thursday but Pacific date is still Wednesday;
			// the Pacific day decides.
			name:    "timezone boundary uses pool-local day",
			kickoff: time.Date(2025, 9, 4, 1, 0, 0, 0, time.UTC), // Wed Sep 3 18:00 Pacific
			want:    time.Date(2025, 8, 27, 23, 59, 59, 0, cal.Location()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := cal.LockTime(tt.kickoff)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.True(t, got.Before(tt.kickoff), "lock time must precede kickoff")
		})
	}
}

func TestStartOfWeek(t *testing.T) {
	t.Parallel()

	cal := mustCalendar(t)

	// Thursday Sep 11 2025 Pacific
	thu := time.Date(2025, 9, 11, 12, 0, 0, 0, cal.Location())
	sun := cal.StartOfWeek(thu)

	assert.Equal(t, time.Sunday, sun.Weekday())
	assert.Equal(t, 0, sun.Hour())
	assert.Equal(t, 7, sun.Day())

	// A Sunday maps to itself at midnight.
	sameSun := cal.StartOfWeek(time.Date(2025, 9, 7, 23, 0, 0, 0, cal.Location()))
	assert.Equal(t, sun.Day(), sameSun.Day())

	assert.Equal(t, time.Monday, cal.MondayStart(thu).Weekday())
	assert.Equal(t, time.Tuesday, cal.TuesdayStart(thu).Weekday())
}

func TestSameLocalDay(t *testing.T) {
	t.Parallel()

	cal := mustCalendar(t)

	// 06:00 UTC and 23:00 UTC on the same UTC date are different Pacific days.
	a := time.Date(2025, 9, 7, 6, 0, 0, 0, time.UTC)  // Sat evening Pacific
	b := time.Date(2025, 9, 7, 23, 0, 0, 0, time.UTC) // Sun afternoon Pacific

	assert.False(t, cal.SameLocalDay(a, b))
	assert.True(t, cal.SameLocalDay(b, b.Add(2*time.Hour)))
}

func TestSeasonYear(t *testing.T) {
	t.Parallel()

	cal := mustCalendar(t)
	assert.Equal(t, 2025, cal.SeasonYear(time.Date(2025, 11, 2, 18, 0, 0, 0, time.UTC)))
}
