package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
	"leaderboard-kinetics/internal/storage/storagetest"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &Client{
		Client: goredis.NewClient(&goredis.Options{
			Addr: mr.Addr(),
		}),
	}
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestHistoryStore_Contract(t *testing.T) {
	storagetest.HistoryStoreTests(t, func(t *testing.T) storage.HistoryStore {
		_, client := setupTestRedis(t)
		return NewHistoryStore(client, "test", 0)
	})
}

func TestLeaderboardStore_Contract(t *testing.T) {
	storagetest.LeaderboardStoreTests(t, func(t *testing.T) storage.LeaderboardStore {
		_, client := setupTestRedis(t)
		return NewLeaderboardStore(client, "test")
	})
	storagetest.TagListerTests(t, func(t *testing.T) storage.LeaderboardStore {
		_, client := setupTestRedis(t)
		return NewLeaderboardStore(client, "test")
	})
}

func TestHistoryStore_RetainedContract(t *testing.T) {
	storagetest.RetainedHistoryTests(t, func(t *testing.T) storage.HistoryStore {
		_, client := setupTestRedis(t)
		return NewHistoryStore(client, "test", 2)
	})
}

func TestHistoryStore_RetainTrimsOldest(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewHistoryStore(client, "lbk", 3)
	ctx := context.Background()

	for ts := int64(1); ts <= 5; ts++ {
		ok, err := store.Append(ctx, "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: ts * 1000})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	members, err := mr.ZMembers("lbk:history:gainers:AAPL")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	series, err := store.ReadTail(ctx, "gainers", "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, int64(3000), series[0].TimestampMs)
}

func TestHistoryStore_KeysAreEscaped(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewHistoryStore(client, "lbk", 0)

	_, err := store.Append(context.Background(), "a:b", domain.Snapshot{Symbol: "c", TimestampMs: 1})
	require.NoError(t, err)

	assert.True(t, mr.Exists("lbk:history:a%3Ab:c"))
}

func TestLeaderboardStore_StoredAsJSONArray(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewLeaderboardStore(client, "lbk")

	require.NoError(t, store.Replace(context.Background(), "gainers", storagetest.SampleLeaderboard()))

	raw, err := mr.Get("lbk:leaderboard:gainers")
	require.NoError(t, err)
	assert.Contains(t, raw, `"symbol":"NVDA"`)
	assert.Equal(t, byte('['), raw[0])
}

func TestHistoryStore_ConnectionError(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewHistoryStore(client, "lbk", 0)
	mr.Close()

	_, err := store.Append(context.Background(), "gainers", domain.Snapshot{Symbol: "AAPL", TimestampMs: 1})
	assert.Error(t, err)
}
