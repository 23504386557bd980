package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
	pgstore "leaderboard-kinetics/internal/storage/postgres"
	"leaderboard-kinetics/internal/storage/storagetest"
)

func TestPostgresStores(t *testing.T) {
	pool := startPostgres(t)

	t.Run("HistoryStore", func(t *testing.T) {
		storagetest.HistoryStoreTests(t, func(t *testing.T) storage.HistoryStore {
			truncate(t, pool)
			return pgstore.NewHistoryStore(pool)
		})
	})

	t.Run("LeaderboardStore", func(t *testing.T) {
		storagetest.LeaderboardStoreTests(t, func(t *testing.T) storage.LeaderboardStore {
			truncate(t, pool)
			return pgstore.NewLeaderboardStore(pool)
		})
	})

	t.Run("HistoryDuplicateKeepsFirstValue", func(t *testing.T) {
		truncate(t, pool)
		store := pgstore.NewHistoryStore(pool)
		ctx := context.Background()

		ok, err := store.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 1, PctChange: 1})
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 1, PctChange: 2})
		require.NoError(t, err)
		assert.False(t, ok)

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM snapshot_history`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("Tags", func(t *testing.T) {
		truncate(t, pool)
		store := pgstore.NewLeaderboardStore(pool)
		ctx := context.Background()

		require.NoError(t, store.Replace(ctx, "losers", nil))
		require.NoError(t, store.Replace(ctx, "gainers", storagetest.SampleLeaderboard()))

		tags, err := store.Tags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"gainers", "losers"}, tags)
	})
}
