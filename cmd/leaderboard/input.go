package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"leaderboard-kinetics/internal/domain"
)

// decodeSnapshots accepts a JSON array, an object with a "snapshots"
// array, or newline-delimited JSON objects.
func decodeSnapshots(r io.Reader) ([]domain.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var batch []domain.Snapshot
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode snapshot array: %w", err)
		}
		return batch, nil
	case '{':
		var wrapped struct {
			Snapshots []domain.Snapshot `json:"snapshots"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Snapshots != nil {
			return wrapped.Snapshots, nil
		}
	}

	var batch []domain.Snapshot
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var s domain.Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		batch = append(batch, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return batch, nil
}
