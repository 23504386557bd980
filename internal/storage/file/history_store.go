package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/keyedmutex"
	"leaderboard-kinetics/internal/storage"
)

// HistoryStore implements storage.HistoryStore with one NDJSON file per
// (tag, symbol) under <root>/history/<tag>/<symbol>.ndjson.
type HistoryStore struct {
	root   string
	retain int
	locks  *keyedmutex.KeyedMutex // per file path
}

// NewHistoryStore creates a new HistoryStore rooted at root.
// When retain > 0 each file keeps at most retain most recent snapshots.
func NewHistoryStore(root string, retain int) *HistoryStore {
	return &HistoryStore{
		root:   root,
		retain: retain,
		locks:  keyedmutex.New(),
	}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append inserts snap in timestamp order and rewrites the file atomically.
// Returns false if the timestamp already exists.
func (s *HistoryStore) Append(ctx context.Context, tag string, snap domain.Snapshot) (bool, error) {
	if err := storage.ValidateKey(tag, snap.Symbol); err != nil {
		return false, err
	}

	path := historyPath(s.root, tag, snap.Symbol)
	return keyedmutex.Do(ctx, s.locks, path, func(context.Context) (bool, error) {
		series, err := readSeries(path)
		if err != nil {
			return false, err
		}

		idx := sort.Search(len(series), func(i int) bool {
			return series[i].TimestampMs >= snap.TimestampMs
		})
		if idx < len(series) && series[idx].TimestampMs == snap.TimestampMs {
			return false, nil
		}
		if s.retain > 0 && idx < len(series)+1-s.retain {
			return false, nil
		}

		series = append(series, domain.Snapshot{})
		copy(series[idx+1:], series[idx:])
		series[idx] = snap

		if s.retain > 0 && len(series) > s.retain {
			series = series[len(series)-s.retain:]
		}

		data, err := encodeSeries(series)
		if err != nil {
			return false, err
		}
		if err := writeFileAtomic(path, data); err != nil {
			return false, fmt.Errorf("write history %s/%s: %w", tag, snap.Symbol, err)
		}
		return true, nil
	})
}

// ReadTail returns the last limit snapshots ordered by timestamp ASC.
func (s *HistoryStore) ReadTail(_ context.Context, tag, symbol string, limit int) (domain.HistorySeries, error) {
	if err := storage.ValidateKey(tag, symbol); err != nil {
		return nil, err
	}

	series, err := readSeries(historyPath(s.root, tag, symbol))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

// readSeries decodes an NDJSON file. A missing file is an empty series.
func readSeries(path string) (domain.HistorySeries, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.HistorySeries{}, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	series := domain.HistorySeries{}
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		series = append(series, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].TimestampMs < series[j].TimestampMs
	})
	return series, nil
}

func encodeSeries(series domain.HistorySeries) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, snap := range series {
		if err := enc.Encode(snap); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
	}
	return buf.Bytes(), nil
}
