package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GameStatus is the three-state game lifecycle tracked by the pool.
type GameStatus string

// Game status values
const (
	StatusScheduled  GameStatus = "scheduled"
	StatusInProgress GameStatus = "in_progress"
	StatusFinal      GameStatus = "final"
)

// Event is one game from the scoreboard feed, already mapped to the
// pool's model. Scores are nil until the feed reports them.
type Event struct {
	ExternalID string
	Kickoff    time.Time
	Status     GameStatus
	HomeAbbr   string
	HomeName   string
	AwayAbbr   string
	AwayName   string
	HomeScore  *int32
	AwayScore  *int32
}

// Snapshot is the parsed scoreboard for one season week. Skipped counts
// feed items that were malformed and dropped during parsing.
type Snapshot struct {
	Season  int
	Week    int
	Events  []Event
	Skipped int
}

// Wire shapes for the upstream scoreboard JSON. Only the fields the
// pool consumes are declared.
type scoreboardResponse struct {
	Events []scoreboardEvent `json:"events"`
}

type scoreboardEvent struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Status struct {
		Type struct {
			State string `json:"state"`
		} `json:"type"`
	} `json:"status"`
	Competitions []struct {
		Competitors []competitor `json:"competitors"`
	} `json:"competitions"`
}

type competitor struct {
	HomeAway string  `json:"homeAway"`
	Score    *string `json:"score"`
	Team     struct {
		Abbreviation string `json:"abbreviation"`
		DisplayName  string `json:"displayName"`
	} `json:"team"`
}

// parseSnapshot maps the raw scoreboard body to a Snapshot. Malformed
// items are dropped individually so one bad event never poisons the
// rest of the feed; each drop is reported through onSkip.
func parseSnapshot(body []byte, season, week int, onSkip func(eventID string, err error)) (*Snapshot, error) {
	var resp scoreboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode scoreboard response: %w", err)
	}

	snapshot := &Snapshot{
		Season: season,
		Week:   week,
		Events: make([]Event, 0, len(resp.Events)),
	}

	for _, raw := range resp.Events {
		event, err := parseEvent(raw)
		if err != nil {
			snapshot.Skipped++
			if onSkip != nil {
				onSkip(raw.ID, err)
			}
			continue
		}
		snapshot.Events = append(snapshot.Events, event)
	}

	return snapshot, nil
}

func parseEvent(raw scoreboardEvent) (Event, error) {
	if raw.ID == "" {
		return Event{}, fmt.Errorf("event has no id")
	}

	kickoff, err := parseKickoff(raw.Date)
	if err != nil {
		return Event{}, fmt.Errorf("invalid kickoff %q: %w", raw.Date, err)
	}

	if len(raw.Competitions) == 0 {
		return Event{}, fmt.Errorf("event has no competitions")
	}

	var home, away *competitor
	for i := range raw.Competitions[0].Competitors {
		c := &raw.Competitions[0].Competitors[i]
		switch c.HomeAway {
		case "home":
			home = c
		case "away":
			away = c
		}
	}
	if home == nil || away == nil {
		return Event{}, fmt.Errorf("event is missing home or away competitor")
	}
	if home.Team.Abbreviation == "" || away.Team.Abbreviation == "" {
		return Event{}, fmt.Errorf("competitor has no team abbreviation")
	}

	homeScore, err := parseScore(home.Score)
	if err != nil {
		return Event{}, fmt.Errorf("invalid home score: %w", err)
	}
	awayScore, err := parseScore(away.Score)
	if err != nil {
		return Event{}, fmt.Errorf("invalid away score: %w", err)
	}

	return Event{
		ExternalID: raw.ID,
		Kickoff:    kickoff,
		Status:     mapStatus(raw.Status.Type.State),
		HomeAbbr:   home.Team.Abbreviation,
		HomeName:   home.Team.DisplayName,
		AwayAbbr:   away.Team.Abbreviation,
		AwayName:   away.Team.DisplayName,
		HomeScore:  homeScore,
		AwayScore:  awayScore,
	}, nil
}

// parseKickoff accepts the feed's ISO8601 timestamps, which usually
// carry minute precision ("2025-09-05T00:20Z"), and normalizes to UTC.
func parseKickoff(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp")
}

// mapStatus folds the feed's pre/in/post states into the pool's model.
// Unknown states count as in progress so a live game is never marked
// final early.
func mapStatus(state string) GameStatus {
	switch state {
	case "pre":
		return StatusScheduled
	case "post":
		return StatusFinal
	default:
		return StatusInProgress
	}
}

func parseScore(value *string) (*int32, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(*value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("score %q is not an integer: %w", *value, err)
	}
	score := int32(n)
	return &score, nil
}
