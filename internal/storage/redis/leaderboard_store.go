package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// LeaderboardStore implements storage.LeaderboardStore. Each leaderboard is
// one JSON string, so SET replaces it atomically.
type LeaderboardStore struct {
	rdb  *Client
	keys keys
}

// NewLeaderboardStore creates a new LeaderboardStore. Keys are namespaced by prefix.
func NewLeaderboardStore(rdb *Client, prefix string) *LeaderboardStore {
	return &LeaderboardStore{rdb: rdb, keys: newKeys(prefix)}
}

// Compile-time interface check.
var (
	_ storage.LeaderboardStore = (*LeaderboardStore)(nil)
	_ storage.TagLister        = (*LeaderboardStore)(nil)
)

// Load returns the leaderboard for tag.
func (s *LeaderboardStore) Load(ctx context.Context, tag string) ([]domain.LeaderboardEntry, error) {
	if tag == "" {
		return nil, storage.ErrInvalidInput
	}

	data, err := s.rdb.Get(ctx, s.keys.leaderboard(tag)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []domain.LeaderboardEntry{}, nil
		}
		return nil, fmt.Errorf("get leaderboard %s: %w", tag, err)
	}

	entries := []domain.LeaderboardEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard %s: %w", tag, err)
	}
	return entries, nil
}

// Replace overwrites the leaderboard for tag.
func (s *LeaderboardStore) Replace(ctx context.Context, tag string, entries []domain.LeaderboardEntry) error {
	if tag == "" {
		return storage.ErrInvalidInput
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard %s: %w", tag, err)
	}
	if err := s.rdb.Set(ctx, s.keys.leaderboard(tag), data, 0).Err(); err != nil {
		return fmt.Errorf("set leaderboard %s: %w", tag, err)
	}
	return nil
}

// Tags scans leaderboard keys and returns their tags in name order.
func (s *LeaderboardStore) Tags(ctx context.Context) ([]string, error) {
	prefix := s.keys.leaderboard("")

	var tags []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		tag, err := url.QueryUnescape(strings.TrimPrefix(iter.Val(), prefix))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan leaderboards: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}
