package domain

import (
	"errors"
	"fmt"
)

// EnrichedEntry is a snapshot extended with its derivative signals.
// Raw signals are promoted from Kinetics; Normalized holds the
// cross-sectionally rescaled values the score was computed from.
type EnrichedEntry struct {
	Snapshot
	Kinetics
	Normalized Kinetics `json:"normalized"`
	WarmingUp  bool     `json:"warmingUp"` // history shorter than the acceleration minimum
	Score      float64  `json:"score"`
	Rank       int      `json:"rank"`
}

// StreakState tracks consecutive appearances and absences across runs.
// Mutated only by the streak merger.
type StreakState struct {
	ConsecutiveAppearances int   `json:"consecutiveAppearances"`
	ConsecutiveAbsences    int   `json:"consecutiveAbsences"`
	FirstSeen              bool  `json:"firstSeen"`
	FirstSeenAtMs          int64 `json:"firstSeenAtMs"`
	LastSeenAtMs           int64 `json:"lastSeenAtMs"`
}

// LeaderboardEntry is the persisted and externally exposed unit.
type LeaderboardEntry struct {
	EnrichedEntry
	StreakState
}

// Leaderboard validation errors.
var (
	ErrDuplicateSymbol = errors.New("duplicate symbol in leaderboard")
	ErrRankGap         = errors.New("leaderboard ranks are not dense")
	ErrOverCapacity    = errors.New("leaderboard exceeds maximum length")
)

// ValidateLeaderboard checks the structural invariants of a ranked list:
// unique symbols, ranks 1..n in order, and length within maxLen
// (maxLen <= 0 disables the size check).
func ValidateLeaderboard(entries []LeaderboardEntry, maxLen int) error {
	if maxLen > 0 && len(entries) > maxLen {
		return fmt.Errorf("%w: %d > %d", ErrOverCapacity, len(entries), maxLen)
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if _, ok := seen[e.Symbol]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, e.Symbol)
		}
		seen[e.Symbol] = struct{}{}

		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrRankGap, i+1, e.Rank)
		}
	}
	return nil
}
