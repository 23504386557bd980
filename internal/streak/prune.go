package streak

import "leaderboard-kinetics/internal/domain"

// Retention bounds how long absent symbols stay on a leaderboard.
// Zero fields disable the corresponding check.
type Retention struct {
	MaxConsecutiveAbsences int
	MaxInactiveMs          int64
}

// Enabled reports whether any retention check is active.
func (r Retention) Enabled() bool {
	return r.MaxConsecutiveAbsences > 0 || r.MaxInactiveMs > 0
}

// Prune removes entries that exceeded the retention limits at nowMs.
// Order of the kept entries is preserved; ranks are not reassigned.
func Prune(entries []domain.LeaderboardEntry, r Retention, nowMs int64) (kept []domain.LeaderboardEntry, removed []string) {
	kept = make([]domain.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if expired(e, r, nowMs) {
			removed = append(removed, e.Symbol)
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed
}

func expired(e domain.LeaderboardEntry, r Retention, nowMs int64) bool {
	if r.MaxConsecutiveAbsences > 0 && e.ConsecutiveAbsences > r.MaxConsecutiveAbsences {
		return true
	}
	if r.MaxInactiveMs > 0 && e.LastSeenAtMs > 0 && nowMs-e.LastSeenAtMs > r.MaxInactiveMs {
		return true
	}
	return false
}
