// Package storage defines the persistence ports of the ranking pipeline.
package storage

import (
	"context"

	"leaderboard-kinetics/internal/domain"
)

// HistoryStore is the append-only snapshot history per (tag, symbol).
type HistoryStore interface {
	// Append adds a snapshot to the (tag, s.Symbol) series.
	// Returns false without error if the timestamp already exists for that key.
	Append(ctx context.Context, tag string, s domain.Snapshot) (bool, error)

	// ReadTail returns the most recent limit snapshots ordered by timestamp ASC.
	// A missing series yields an empty result, not an error.
	// limit <= 0 returns the whole series.
	ReadTail(ctx context.Context, tag, symbol string, limit int) (domain.HistorySeries, error)
}

// LeaderboardStore persists the ranked list per tag.
type LeaderboardStore interface {
	// Load returns the persisted leaderboard in rank order.
	// A missing leaderboard yields an empty result, not an error.
	Load(ctx context.Context, tag string) ([]domain.LeaderboardEntry, error)

	// Replace atomically swaps the persisted leaderboard.
	// Concurrent readers observe either the old or the new list, never a partial one.
	Replace(ctx context.Context, tag string, entries []domain.LeaderboardEntry) error
}

// ValidateKey checks the components of a history key.
func ValidateKey(tag, symbol string) error {
	if tag == "" || symbol == "" {
		return ErrInvalidInput
	}
	return nil
}

// TagLister is implemented by leaderboard stores that can enumerate tags.
type TagLister interface {
	// Tags returns every persisted leaderboard tag in name order.
	Tags(ctx context.Context) ([]string, error)
}
