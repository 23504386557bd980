package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(ts int64, pct float64) Snapshot {
	return Snapshot{Symbol: "AAPL", TimestampMs: ts, PctChange: pct, Volume: pct * 10}
}

func timestamps(h HistorySeries) []int64 {
	out := make([]int64, len(h))
	for i, s := range h {
		out[i] = s.TimestampMs
	}
	return out
}

func TestMergeSeries(t *testing.T) {
	tail := HistorySeries{snap(1, 1), snap(3, 3)}
	batch := HistorySeries{snap(4, 4), snap(2, 2), snap(3, 99)}

	got := MergeSeries(tail, batch, 0)
	assert.Equal(t, []int64{1, 2, 3, 4}, timestamps(got))
	// first series wins on equal timestamps
	assert.Equal(t, 3.0, got[2].PctChange)

	limited := MergeSeries(tail, batch, 2)
	assert.Equal(t, []int64{3, 4}, timestamps(limited))

	assert.Empty(t, MergeSeries(nil, nil, 5))
}

func TestHistorySeries_ValuesAndLatest(t *testing.T) {
	h := HistorySeries{snap(1, 0.5), snap(2, 1.5)}
	assert.Equal(t, []float64{0.5, 1.5}, h.Values(FieldPctChange))
	assert.Equal(t, []float64{5, 15}, h.Values(FieldVolume))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.TimestampMs)

	_, ok = HistorySeries{}.Latest()
	assert.False(t, ok)
}

func TestSignal_FieldAndAccessors(t *testing.T) {
	var k Kinetics
	for i, s := range AllSignals {
		k.Set(s, float64(i+1))
	}
	for i, s := range AllSignals {
		assert.Equal(t, float64(i+1), k.Get(s), s.String())
	}

	assert.Equal(t, FieldPctChange, SignalPctVelocity.Field())
	assert.Equal(t, FieldVolume, SignalVolAcceleration.Field())
	assert.True(t, SignalPctAcceleration.IsAcceleration())
	assert.False(t, SignalVolVelocity.IsAcceleration())
}

func entry(symbol string, rank int) LeaderboardEntry {
	var e LeaderboardEntry
	e.Symbol = symbol
	e.Rank = rank
	return e
}

func TestValidateLeaderboard(t *testing.T) {
	tests := []struct {
		name    string
		entries []LeaderboardEntry
		maxLen  int
		wantErr error
	}{
		{"empty", nil, 10, nil},
		{"valid", []LeaderboardEntry{entry("A", 1), entry("B", 2)}, 2, nil},
		{"no size limit", []LeaderboardEntry{entry("A", 1), entry("B", 2)}, 0, nil},
		{"over capacity", []LeaderboardEntry{entry("A", 1), entry("B", 2)}, 1, ErrOverCapacity},
		{"duplicate", []LeaderboardEntry{entry("A", 1), entry("A", 2)}, 0, ErrDuplicateSymbol},
		{"gap", []LeaderboardEntry{entry("A", 1), entry("B", 3)}, 0, ErrRankGap},
		{"starts at zero", []LeaderboardEntry{entry("A", 0)}, 0, ErrRankGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLeaderboard(tt.entries, tt.maxLen)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
