package pipeline

import "time"

const summaryTopN = 5

// Summary describes a finished run. It is logged and published.
type Summary struct {
	CorrelationID string         `json:"correlationId"`
	Tag           string         `json:"tag"`
	Mode          Mode           `json:"mode"`
	StartedAt     time.Time      `json:"startedAt"`
	DurationMs    int64          `json:"durationMs"`
	Entries       int            `json:"entries"`
	Persisted     bool           `json:"persisted"`
	Stats         RunStats       `json:"stats"`
	Removed       []string       `json:"removed,omitempty"`
	Top           []SummaryEntry `json:"top"`
}

// SummaryEntry is one of the leading leaderboard entries.
type SummaryEntry struct {
	Rank      int     `json:"rank"`
	Symbol    string  `json:"symbol"`
	Score     float64 `json:"score"`
	WarmingUp bool    `json:"warmingUp"`
	FirstSeen bool    `json:"firstSeen"`
}

func buildSummary(rc *RunContext, now time.Time) Summary {
	top := make([]SummaryEntry, 0, min(summaryTopN, len(rc.Leaderboard)))
	for _, e := range rc.Leaderboard {
		if len(top) == summaryTopN {
			break
		}
		top = append(top, SummaryEntry{
			Rank:      e.Rank,
			Symbol:    e.Symbol,
			Score:     e.Score,
			WarmingUp: e.WarmingUp,
			FirstSeen: e.FirstSeen,
		})
	}

	return Summary{
		CorrelationID: rc.CorrelationID,
		Tag:           rc.Tag,
		Mode:          rc.Mode,
		StartedAt:     rc.StartedAt,
		DurationMs:    now.Sub(rc.StartedAt).Milliseconds(),
		Entries:       len(rc.Leaderboard),
		Persisted:     rc.Persisted,
		Stats:         rc.Stats,
		Removed:       rc.Removed,
		Top:           top,
	}
}
