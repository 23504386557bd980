// Package storagetest holds behavioural tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

// RetainedHistoryTests checks stores built by newStore that keep at most
// two snapshots per series.
func RetainedHistoryTests(t *testing.T, newStore func(t *testing.T) storage.HistoryStore) {
	t.Helper()

	t.Run("PointOlderThanWindowIsNotAppended", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, ts := range []int64{2000, 3000} {
			ok, err := s.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: ts})
			require.NoError(t, err)
			require.True(t, ok)
		}

		ok, err := s.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 1000})
		require.NoError(t, err)
		assert.False(t, ok, "a point trimmed on insert is not appended")

		ok, err = s.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 2500})
		require.NoError(t, err)
		assert.True(t, ok)

		series, err := s.ReadTail(ctx, "gainers", "AAPL", 0)
		require.NoError(t, err)
		require.Len(t, series, 2)
		assert.Equal(t, int64(2500), series[0].TimestampMs)
		assert.Equal(t, int64(3000), series[1].TimestampMs)
	})
}

// HistoryStoreTests runs the HistoryStore contract against stores built by newStore.
// Each subtest gets a fresh store.
func HistoryStoreTests(t *testing.T, newStore func(t *testing.T) storage.HistoryStore) {
	t.Helper()

	t.Run("AppendAndReadTail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, ts := range []int64{3000, 1000, 2000} {
			ok, err := s.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: ts, PctChange: float64(ts) / 1000, Volume: 10})
			require.NoError(t, err)
			assert.True(t, ok)
		}

		series, err := s.ReadTail(ctx, "gainers", "AAPL", 10)
		require.NoError(t, err)
		require.Len(t, series, 3)
		assert.Equal(t, int64(1000), series[0].TimestampMs)
		assert.Equal(t, int64(2000), series[1].TimestampMs)
		assert.Equal(t, int64(3000), series[2].TimestampMs)
		assert.Equal(t, 3.0, series[2].PctChange)
	})

	t.Run("ReadTailLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for ts := int64(1); ts <= 5; ts++ {
			_, err := s.Append(ctx, "gainers", domain.Snapshot{Symbol: "MSFT", TimestampMs: ts * 1000})
			require.NoError(t, err)
		}

		series, err := s.ReadTail(ctx, "gainers", "MSFT", 2)
		require.NoError(t, err)
		require.Len(t, series, 2)
		assert.Equal(t, int64(4000), series[0].TimestampMs)
		assert.Equal(t, int64(5000), series[1].TimestampMs)

		all, err := s.ReadTail(ctx, "gainers", "MSFT", 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("DuplicateTimestampIsNoop", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		snap := domain.Snapshot{Symbol: "AAPL", TimestampMs: 600000, PctChange: 0.2, Volume: 1400}

		ok, err := s.Append(ctx, "gainers", snap)
		require.NoError(t, err)
		assert.True(t, ok)

		snap.PctChange = 9.9
		ok, err = s.Append(ctx, "gainers", snap)
		require.NoError(t, err)
		assert.False(t, ok)

		series, err := s.ReadTail(ctx, "gainers", "AAPL", 10)
		require.NoError(t, err)
		require.Len(t, series, 1)
		assert.Equal(t, 0.2, series[0].PctChange)
	})

	t.Run("MissingSeriesIsEmpty", func(t *testing.T) {
		s := newStore(t)

		series, err := s.ReadTail(context.Background(), "gainers", "NOPE", 5)
		require.NoError(t, err)
		assert.Empty(t, series)
	})

	t.Run("TagsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 1})
		require.NoError(t, err)

		series, err := s.ReadTail(ctx, "losers", "AAPL", 5)
		require.NoError(t, err)
		assert.Empty(t, series)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Append(context.Background(), "", domain.Snapshot{Symbol: "AAPL"})
		assert.True(t, errors.Is(err, storage.ErrInvalidInput))

		_, err = s.Append(context.Background(), "gainers", domain.Snapshot{})
		assert.True(t, errors.Is(err, storage.ErrInvalidInput))
	})
}

// LeaderboardStoreTests runs the LeaderboardStore contract against stores built by newStore.
func LeaderboardStoreTests(t *testing.T, newStore func(t *testing.T) storage.LeaderboardStore) {
	t.Helper()

	t.Run("ReplaceAndLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entries := SampleLeaderboard()

		require.NoError(t, s.Replace(ctx, "gainers", entries))

		got, err := s.Load(ctx, "gainers")
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	})

	t.Run("ReplaceOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Replace(ctx, "gainers", SampleLeaderboard()))
		require.NoError(t, s.Replace(ctx, "gainers", SampleLeaderboard()[:1]))

		got, err := s.Load(ctx, "gainers")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "NVDA", got[0].Symbol)
	})

	t.Run("MissingIsEmpty", func(t *testing.T) {
		s := newStore(t)

		got, err := s.Load(context.Background(), "nothing-here")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("InvalidTag", func(t *testing.T) {
		s := newStore(t)

		err := s.Replace(context.Background(), "", nil)
		assert.True(t, errors.Is(err, storage.ErrInvalidInput))
	})
}

// SampleLeaderboard returns a small ranked leaderboard with every field populated.
func SampleLeaderboard() []domain.LeaderboardEntry {
	first := domain.LeaderboardEntry{
		EnrichedEntry: domain.EnrichedEntry{
			Snapshot:   domain.Snapshot{Symbol: "NVDA", TimestampMs: 600000, PctChange: 0.2, Volume: 1400},
			Kinetics:   domain.Kinetics{PctVelocity: 0.08, PctAcceleration: 0.01, VolVelocity: 400, VolAcceleration: -20},
			Normalized: domain.Kinetics{PctVelocity: 1.2, PctAcceleration: 0.3, VolVelocity: 0.9, VolAcceleration: -0.1},
			Score:      1.825,
			Rank:       1,
		},
		StreakState: domain.StreakState{
			ConsecutiveAppearances: 4,
			FirstSeenAtMs:          0,
			LastSeenAtMs:           600000,
		},
	}
	second := domain.LeaderboardEntry{
		EnrichedEntry: domain.EnrichedEntry{
			Snapshot:  domain.Snapshot{Symbol: "AAPL", TimestampMs: 600000, PctChange: 0.12, Volume: 1000},
			WarmingUp: true,
			Rank:      2,
		},
		StreakState: domain.StreakState{
			ConsecutiveAppearances: 1,
			FirstSeen:              true,
			FirstSeenAtMs:          600000,
			LastSeenAtMs:           600000,
		},
	}
	return []domain.LeaderboardEntry{first, second}
}

// TagListerTests checks tag enumeration for stores that implement storage.TagLister.
func TagListerTests(t *testing.T, newStore func(t *testing.T) storage.LeaderboardStore) {
	t.Helper()

	t.Run("Tags", func(t *testing.T) {
		s := newStore(t)
		lister, ok := s.(storage.TagLister)
		require.True(t, ok, "store does not implement TagLister")
		ctx := context.Background()

		tags, err := lister.Tags(ctx)
		require.NoError(t, err)
		assert.Empty(t, tags)

		require.NoError(t, s.Replace(ctx, "losers", nil))
		require.NoError(t, s.Replace(ctx, "top:gainers", SampleLeaderboard()))

		tags, err = lister.Tags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"losers", "top:gainers"}, tags)
	})
}
