package clickhouse

import (
	"context"
	"fmt"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// HistoryStore implements storage.HistoryStore using ClickHouse.
// Suited for long retention; ReplacingMergeTree collapses duplicate keys
// that slip past the existence check under concurrent writers.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append inserts snap unless (tag, symbol, timestamp_ms) exists.
func (s *HistoryStore) Append(ctx context.Context, tag string, snap domain.Snapshot) (bool, error) {
	if err := storage.ValidateKey(tag, snap.Symbol); err != nil {
		return false, err
	}

	exists, err := s.exists(ctx, tag, snap.Symbol, snap.TimestampMs)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return false, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO snapshot_history (
			tag, symbol, timestamp_ms, pct_change, volume
		)
	`)
	if err != nil {
		return false, fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(tag, snap.Symbol, snap.TimestampMs, snap.PctChange, snap.Volume); err != nil {
		return false, fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return false, fmt.Errorf("send batch: %w", err)
	}
	return true, nil
}

// ReadTail returns the last limit snapshots ordered by timestamp ASC.
func (s *HistoryStore) ReadTail(ctx context.Context, tag, symbol string, limit int) (domain.HistorySeries, error) {
	if err := storage.ValidateKey(tag, symbol); err != nil {
		return nil, err
	}

	query := `
		SELECT symbol, timestamp_ms, pct_change, volume
		FROM snapshot_history FINAL
		WHERE tag = ? AND symbol = ?
		ORDER BY timestamp_ms DESC
	`
	args := []any{tag, symbol}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
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

	// Reverse DESC to ASC
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}
	return series, nil
}

// exists checks if a snapshot with the given key exists.
func (s *HistoryStore) exists(ctx context.Context, tag, symbol string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM snapshot_history
		WHERE tag = ? AND symbol = ? AND timestamp_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, tag, symbol, timestampMs).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
