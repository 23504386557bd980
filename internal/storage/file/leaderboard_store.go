package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// LeaderboardStore implements storage.LeaderboardStore with one JSON array
// per tag under <root>/leaderboards/<tag>.json.
type LeaderboardStore struct {
	root string
}

// NewLeaderboardStore creates a new LeaderboardStore rooted at root.
func NewLeaderboardStore(root string) *LeaderboardStore {
	return &LeaderboardStore{root: root}
}

// Compile-time interface check.
var (
	_ storage.LeaderboardStore = (*LeaderboardStore)(nil)
	_ storage.TagLister        = (*LeaderboardStore)(nil)
)

// Load reads the leaderboard for tag.
func (s *LeaderboardStore) Load(_ context.Context, tag string) ([]domain.LeaderboardEntry, error) {
	if tag == "" {
		return nil, storage.ErrInvalidInput
	}

	data, err := os.ReadFile(leaderboardPath(s.root, tag))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.LeaderboardEntry{}, nil
		}
		return nil, fmt.Errorf("read leaderboard %s: %w", tag, err)
	}

	entries := []domain.LeaderboardEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard %s: %w", tag, err)
	}
	return entries, nil
}

// Replace writes entries to a temporary file and renames it over the leaderboard.
func (s *LeaderboardStore) Replace(_ context.Context, tag string, entries []domain.LeaderboardEntry) error {
	if tag == "" {
		return storage.ErrInvalidInput
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode leaderboard %s: %w", tag, err)
	}
	if err := writeFileAtomic(leaderboardPath(s.root, tag), data); err != nil {
		return fmt.Errorf("write leaderboard %s: %w", tag, err)
	}
	return nil
}

// Tags lists the leaderboard files in name order.
func (s *LeaderboardStore) Tags(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, leaderboardDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list leaderboards: %w", err)
	}

	var tags []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		tag, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}
