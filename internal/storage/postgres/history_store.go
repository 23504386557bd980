package postgres

import (
	"context"
	"fmt"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append inserts a snapshot. Returns false if (tag, symbol, timestamp_ms) exists.
func (s *HistoryStore) Append(ctx context.Context, tag string, snap domain.Snapshot) (bool, error) {
	if err := storage.ValidateKey(tag, snap.Symbol); err != nil {
		return false, err
	}

	query := `
		INSERT INTO snapshot_history (
			tag, symbol, timestamp_ms, pct_change, volume
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tag, symbol, timestamp_ms) DO NOTHING
	`

	cmd, err := s.pool.Exec(ctx, query,
		tag,
		snap.Symbol,
		snap.TimestampMs,
		snap.PctChange,
		snap.Volume,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// ReadTail returns the last limit snapshots ordered by timestamp ASC.
func (s *HistoryStore) ReadTail(ctx context.Context, tag, symbol string, limit int) (domain.HistorySeries, error) {
	if err := storage.ValidateKey(tag, symbol); err != nil {
		return nil, err
	}

	// LIMIT NULL means no limit
	var lim any
	if limit > 0 {
		lim = limit
	}

	query := `
		SELECT symbol, timestamp_ms, pct_change, volume
		FROM (
			SELECT symbol, timestamp_ms, pct_change, volume
			FROM snapshot_history
			WHERE tag = $1 AND symbol = $2
			ORDER BY timestamp_ms DESC
			LIMIT $3
		) tail
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, tag, symbol, lim)
	if err != nil {
		return nil, fmt.Errorf("query history tail: %w", err)
	}
	defer rows.Close()

	series := domain.HistorySeries{}
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.Symbol, &snap.TimestampMs, &snap.PctChange, &snap.Volume); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		series = append(series, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return series, nil
}
