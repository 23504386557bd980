// Package streak merges freshly enriched batches into the previous
// leaderboard state and maintains appearance and absence streaks.
package streak

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"leaderboard-kinetics/internal/domain"
)

// Policy selects how streak counters react to appearance and absence.
type Policy string

// Supported policies.
const (
	// PolicyAppearance counts consecutive appearances. An absence resets
	// the appearance counter and a return after absence restarts it at 1.
	PolicyAppearance Policy = "appearance"
	// PolicyAbsence counts consecutive absences only. The appearance
	// counter is set once when a symbol is first seen and never reset.
	PolicyAbsence Policy = "absence"
)

// ErrUnknownPolicy is returned for an unrecognized policy name.
var ErrUnknownPolicy = errors.New("unknown streak policy")

// ParsePolicy resolves a policy name. Empty selects PolicyAppearance.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyAppearance:
		return PolicyAppearance, nil
	case PolicyAbsence:
		return PolicyAbsence, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Merger combines a batch with the previous leaderboard.
type Merger struct {
	policy Policy
}

// NewMerger creates a Merger for the given policy.
func NewMerger(policy Policy) (*Merger, error) {
	p, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return &Merger{policy: p}, nil
}

// Policy returns the configured policy.
func (m *Merger) Policy() Policy {
	return m.policy
}

// Merge returns the next leaderboard state. prev is left untouched.
//
// Output order is prev order followed by new symbols sorted by name, so a
// stable sort on the result keeps prior relative order for equal scores.
// Symbols absent from batch are carried forward with updated counters;
// Merge never drops a symbol.
func (m *Merger) Merge(prev []domain.LeaderboardEntry, batch []domain.EnrichedEntry) []domain.LeaderboardEntry {
	current := make(map[string]domain.EnrichedEntry, len(batch))
	for _, e := range batch {
		current[e.Symbol] = e
	}

	out := make([]domain.LeaderboardEntry, 0, len(prev)+len(batch))
	seen := make(map[string]struct{}, len(prev))

	for _, p := range prev {
		if _, dup := seen[p.Symbol]; dup {
			continue
		}
		seen[p.Symbol] = struct{}{}

		entry := p
		if cur, ok := current[p.Symbol]; ok {
			m.appear(&entry, cur, false)
		} else {
			m.absent(&entry)
		}
		out = append(out, entry)
	}

	var fresh []string
	for sym := range current {
		if _, ok := seen[sym]; !ok {
			fresh = append(fresh, sym)
		}
	}
	sort.Strings(fresh)

	for _, sym := range fresh {
		var entry domain.LeaderboardEntry
		m.appear(&entry, current[sym], true)
		out = append(out, entry)
	}

	return out
}

// appear overlays the current batch entry and updates counters for a present symbol.
func (m *Merger) appear(entry *domain.LeaderboardEntry, cur domain.EnrichedEntry, isNew bool) {
	prev := entry.StreakState

	entry.EnrichedEntry = cur
	entry.Rank = 0
	entry.FirstSeen = isNew
	entry.LastSeenAtMs = max(prev.LastSeenAtMs, cur.TimestampMs)
	if isNew || prev.FirstSeenAtMs == 0 {
		entry.FirstSeenAtMs = cur.TimestampMs
	}

	switch m.policy {
	case PolicyAbsence:
		if isNew {
			entry.ConsecutiveAppearances = 1
		}
	default:
		if isNew || prev.ConsecutiveAbsences > 0 {
			entry.ConsecutiveAppearances = 1
		} else {
			entry.ConsecutiveAppearances = prev.ConsecutiveAppearances + 1
		}
	}
	entry.ConsecutiveAbsences = 0
}

// absent updates counters for a carried-forward symbol.
func (m *Merger) absent(entry *domain.LeaderboardEntry) {
	entry.FirstSeen = false
	entry.ConsecutiveAbsences++
	if m.policy == PolicyAppearance {
		entry.ConsecutiveAppearances = 0
	}
}
