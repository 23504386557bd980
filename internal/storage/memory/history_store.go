package memory

import (
	"context"
	"sort"
	"sync"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

type historyKey struct {
	tag    string
	symbol string
}

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu     sync.RWMutex
	data   map[historyKey]domain.HistorySeries
	retain int
}

// NewHistoryStore creates a new in-memory history store.
// When retain > 0 each series keeps at most retain most recent points.
func NewHistoryStore(retain int) *HistoryStore {
	return &HistoryStore{
		data:   make(map[historyKey]domain.HistorySeries),
		retain: retain,
	}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append inserts s keeping the series ordered by timestamp.
// Returns false if the timestamp already exists.
func (s *HistoryStore) Append(_ context.Context, tag string, snap domain.Snapshot) (bool, error) {
	if err := storage.ValidateKey(tag, snap.Symbol); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := historyKey{tag, snap.Symbol}
	series := s.data[key]

	// Binary search for insert position
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].TimestampMs >= snap.TimestampMs
	})
	if idx < len(series) && series[idx].TimestampMs == snap.TimestampMs {
		return false, nil
	}
	// older than the retained window: it would be trimmed right away
	if s.retain > 0 && idx < len(series)+1-s.retain {
		return false, nil
	}

	series = append(series, domain.Snapshot{})
	copy(series[idx+1:], series[idx:])
	series[idx] = snap

	if s.retain > 0 && len(series) > s.retain {
		series = append(domain.HistorySeries(nil), series[len(series)-s.retain:]...)
	}
	s.data[key] = series
	return true, nil
}

// ReadTail returns a copy of the last limit points ordered by timestamp ASC.
func (s *HistoryStore) ReadTail(_ context.Context, tag, symbol string, limit int) (domain.HistorySeries, error) {
	if err := storage.ValidateKey(tag, symbol); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[historyKey{tag, symbol}]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}

	// Return a copy
	out := make(domain.HistorySeries, len(series))
	copy(out, series)
	return out, nil
}
