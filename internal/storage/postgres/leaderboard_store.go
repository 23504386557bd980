package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// LeaderboardStore implements storage.LeaderboardStore using PostgreSQL.
// Each tag is one row holding the ranked list as JSONB.
type LeaderboardStore struct {
	pool *Pool
}

// NewLeaderboardStore creates a new LeaderboardStore.
func NewLeaderboardStore(pool *Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
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

	query := `SELECT entries FROM leaderboards WHERE tag = $1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, tag).Scan(&raw); err != nil {
		if isNotFoundError(err) {
			return []domain.LeaderboardEntry{}, nil
		}
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := []domain.LeaderboardEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entries, nil
}

// Replace upserts the leaderboard row for tag in a single statement.
func (s *LeaderboardStore) Replace(ctx context.Context, tag string, entries []domain.LeaderboardEntry) error {
	if tag == "" {
		return storage.ErrInvalidInput
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}

	query := `
		INSERT INTO leaderboards (tag, entries, entry_count, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tag) DO UPDATE SET
			entries = EXCLUDED.entries,
			entry_count = EXCLUDED.entry_count,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, tag, raw, len(entries)); err != nil {
		return fmt.Errorf("upsert leaderboard: %w", err)
	}
	return nil
}

// Tags lists every persisted leaderboard tag in name order.
func (s *LeaderboardStore) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT tag FROM leaderboards ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
