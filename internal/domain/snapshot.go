package domain

import "sort"

// Snapshot is a point-in-time observation for one symbol.
// Immutable once appended to history.
type Snapshot struct {
	Symbol      string  `json:"symbol"`
	TimestampMs int64   `json:"timestampMs"` // Unix timestamp in milliseconds
	PctChange   float64 `json:"pctChange"`   // price change percentage
	Volume      float64 `json:"volume"`      // traded volume
}

// HistorySeries is the ordered snapshot history of one (tag, symbol).
// Ordered by TimestampMs ASC with no duplicate timestamps.
type HistorySeries []Snapshot

// Field selects a numeric field of a Snapshot.
type Field int

// Snapshot fields that carry derivative signals.
const (
	FieldPctChange Field = iota
	FieldVolume
)

// String returns the field name as used in serialized snapshots.
func (f Field) String() string {
	switch f {
	case FieldPctChange:
		return "pctChange"
	case FieldVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Value returns the field value of s.
func (f Field) Value(s Snapshot) float64 {
	if f == FieldVolume {
		return s.Volume
	}
	return s.PctChange
}

// Values extracts the field from every point of the series.
func (h HistorySeries) Values(f Field) []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = f.Value(s)
	}
	return out
}

// Latest returns the most recent snapshot of the series.
func (h HistorySeries) Latest() (Snapshot, bool) {
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return h[len(h)-1], true
}

// MergeSeries combines two series into one ordered by timestamp.
// Points of b whose timestamp already exists in a are dropped.
// When limit > 0 only the most recent limit points are kept.
func MergeSeries(a, b HistorySeries, limit int) HistorySeries {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make(HistorySeries, 0, len(a)+len(b))
	for _, series := range []HistorySeries{a, b} {
		for _, s := range series {
			if _, ok := seen[s.TimestampMs]; ok {
				continue
			}
			seen[s.TimestampMs] = struct{}{}
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
