package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboard-kinetics/internal/config"
	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage/file"
	"leaderboard-kinetics/internal/storage/memory"
	redisstore "leaderboard-kinetics/internal/storage/redis"
)

func build(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	require.NoError(t, cfg.Validate())

	c, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ingestRuns(t *testing.T, c *Container) {
	t.Helper()
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		_, err := c.Engine.Ingest(ctx, "gainers", []domain.Snapshot{
			{Symbol: "AAPL", TimestampMs: i * 60000, PctChange: float64(i), Volume: 100},
			{Symbol: "MSFT", TimestampMs: i * 60000, PctChange: -float64(i), Volume: 100},
		})
		require.NoError(t, err)
	}

	entries, err := c.Engine.Leaderboard(ctx, "gainers")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, 3, entries[0].ConsecutiveAppearances)
}

func TestBuild_Memory(t *testing.T) {
	c := build(t, config.Default())

	assert.IsType(t, &memory.HistoryStore{}, c.History)
	assert.IsType(t, &memory.LeaderboardStore{}, c.Leaderboards)
	assert.Nil(t, c.Publisher)
	assert.NotNil(t, c.Hub)
	ingestRuns(t, c)

	tags, ok, err := c.Tags(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"gainers"}, tags)
}

func TestBuild_File(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.History = config.BackendFile
	cfg.Storage.Leaderboard = config.BackendFile
	cfg.Storage.Dir = t.TempDir()

	c := build(t, cfg)
	assert.IsType(t, &file.HistoryStore{}, c.History)
	ingestRuns(t, c)
}

func TestBuild_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Storage.History = config.BackendRedis
	cfg.Storage.Leaderboard = config.BackendRedis
	cfg.Storage.Redis.Addr = mr.Addr()
	cfg.Retention.HistoryPerSymbol = 20

	c := build(t, cfg)
	assert.IsType(t, &redisstore.HistoryStore{}, c.History)
	ingestRuns(t, c)
}

func TestBuild_RedisUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.History = config.BackendRedis
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	c, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestBuild_WithNATSPublisher(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	cfg := config.Default()
	cfg.PubSub.NATS.URL = s.ClientURL()

	c := build(t, cfg)
	require.NotNil(t, c.Publisher)
	require.NoError(t, c.Publisher.Health(context.Background()))
	ingestRuns(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func TestRedactDSN(t *testing.T) {
	tests := map[string]string{
		"postgres://user:secret@db:5432/lb?sslmode=disable": "postgres://***@db:5432/lb",
		"clickhouse://default@ch:9000/lb":                   "clickhouse://***@ch:9000/lb",
		"postgres://db:5432/lb":                             "postgres://db:5432/lb",
		"":                                                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, redactDSN(in), in)
	}
}
