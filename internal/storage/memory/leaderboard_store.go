package memory

import (
	"context"
	"sort"
	"sync"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// LeaderboardStore is an in-memory implementation of storage.LeaderboardStore.
type LeaderboardStore struct {
	mu   sync.RWMutex
	data map[string][]domain.LeaderboardEntry // keyed by tag
}

// NewLeaderboardStore creates a new in-memory leaderboard store.
func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{
		data: make(map[string][]domain.LeaderboardEntry),
	}
}

// Compile-time interface check.
var (
	_ storage.LeaderboardStore = (*LeaderboardStore)(nil)
	_ storage.TagLister        = (*LeaderboardStore)(nil)
)

// Load returns a copy of the leaderboard for tag.
func (s *LeaderboardStore) Load(_ context.Context, tag string) ([]domain.LeaderboardEntry, error) {
	if tag == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.data[tag]
	out := make([]domain.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Replace swaps the leaderboard for tag with a copy of entries.
func (s *LeaderboardStore) Replace(_ context.Context, tag string, entries []domain.LeaderboardEntry) error {
	if tag == "" {
		return storage.ErrInvalidInput
	}

	// Store a copy to prevent external mutation
	stored := make([]domain.LeaderboardEntry, len(entries))
	copy(stored, entries)

	s.mu.Lock()
	s.data[tag] = stored
	s.mu.Unlock()
	return nil
}

// Tags returns every stored tag in name order.
func (s *LeaderboardStore) Tags(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make([]string, 0, len(s.data))
	for tag := range s.data {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}
