// Package ranking scores leaderboard entries, assigns dense ranks and
// enforces the leaderboard size cap.
package ranking

import (
	"sort"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/kinetics"
)

// Ranker scores and orders leaderboard entries.
type Ranker struct {
	scorer Scorer
}

// NewRanker creates a Ranker. A nil scorer selects WeightedSum with DefaultWeights.
func NewRanker(scorer Scorer) *Ranker {
	if scorer == nil {
		scorer = WeightedSum{Weights: DefaultWeights}
	}
	return &Ranker{scorer: scorer}
}

// Scorer returns the configured scoring strategy.
func (r *Ranker) Scorer() Scorer {
	return r.scorer
}

// Rank rescores entries whose symbol is in present, sorts all entries and
// assigns ranks 1..n in place. Entries not in present keep their score.
//
// Order: non-warming entries by score DESC, then warming entries. The sort
// is stable, so equal scores keep their input order.
func (r *Ranker) Rank(entries []domain.LeaderboardEntry, present map[string]struct{}) {
	for i := range entries {
		e := &entries[i]
		if _, ok := present[e.Symbol]; !ok {
			continue
		}
		if e.WarmingUp {
			e.Score = 0
			continue
		}
		e.Score = kinetics.Sanitize(r.scorer.Score(e.Normalized), 0)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.WarmingUp != b.WarmingUp {
			return !a.WarmingUp
		}
		if a.WarmingUp {
			return false
		}
		return a.Score > b.Score
	})

	Renumber(entries)
}

// Renumber assigns dense ranks 1..n following slice order.
func Renumber(entries []domain.LeaderboardEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// Trim drops the lowest-ranked entries beyond maxLen.
// Must run after Rank. maxLen <= 0 disables trimming.
func Trim(entries []domain.LeaderboardEntry, maxLen int) (kept []domain.LeaderboardEntry, dropped int) {
	if maxLen <= 0 || len(entries) <= maxLen {
		return entries, 0
	}
	return entries[:maxLen], len(entries) - maxLen
}
