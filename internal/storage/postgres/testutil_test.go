package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"leaderboard-kinetics/internal/storage/migrations"
	pgstore "leaderboard-kinetics/internal/storage/postgres"
)

// startPostgres runs a throwaway PostgreSQL container with the embedded
// schema applied. Skipped in -short mode.
func startPostgres(t *testing.T) *pgstore.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("kinetics"),
		tcpostgres.WithUsername("kinetics"),
		tcpostgres.WithPassword("kinetics"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgstore.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	again, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again, "migrations must apply once")

	return pool
}

func truncate(t *testing.T, pool *pgstore.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE snapshot_history, leaderboards`)
	require.NoError(t, err)
}
