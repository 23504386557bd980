// Package app wires configuration into a runnable pipeline:
// config -> logger -> stores -> engine -> publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"leaderboard-kinetics/internal/config"
	"leaderboard-kinetics/internal/keyedmutex"
	"leaderboard-kinetics/internal/kinetics"
	"leaderboard-kinetics/internal/normalization"
	"leaderboard-kinetics/internal/observability"
	"leaderboard-kinetics/internal/pipeline"
	"leaderboard-kinetics/internal/pubsub"
	natspub "leaderboard-kinetics/internal/pubsub/nats"
	"leaderboard-kinetics/internal/ranking"
	"leaderboard-kinetics/internal/storage"
	chstore "leaderboard-kinetics/internal/storage/clickhouse"
	"leaderboard-kinetics/internal/storage/file"
	"leaderboard-kinetics/internal/storage/memory"
	"leaderboard-kinetics/internal/storage/migrations"
	"leaderboard-kinetics/internal/storage/postgres"
	redisstore "leaderboard-kinetics/internal/storage/redis"
	"leaderboard-kinetics/internal/streak"
)

// Container holds the constructed dependencies of the service.
type Container struct {
	Config       *config.Config
	Log          zerolog.Logger
	Engine       *pipeline.Engine
	History      storage.HistoryStore
	Leaderboards storage.LeaderboardStore
	Publisher    pubsub.Publisher // NATS; nil when publishing is disabled
	Hub          *pubsub.Hub      // in-process summary subscribers
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry

	closers []func() error
}

// Close releases every connection opened by Build, last opened first.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Tags lists persisted leaderboard tags when the store supports it.
func (c *Container) Tags(ctx context.Context) ([]string, bool, error) {
	lister, ok := c.Leaderboards.(storage.TagLister)
	if !ok {
		return nil, false, nil
	}
	tags, err := lister.Tags(ctx)
	return tags, true, err
}

// Build constructs the container. On error every partially opened
// resource is closed.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (c *Container, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c = &Container{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  observability.NewMetrics(observability.DefaultNamespace, reg),
		Hub:      pubsub.NewHub(pubsub.DefaultHubBuffer),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if err = c.buildStores(ctx); err != nil {
		return nil, err
	}
	if err = c.buildPublisher(); err != nil {
		return nil, err
	}
	if err = c.buildEngine(); err != nil {
		return nil, err
	}

	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}
	log.Info().
		Str("history", cfg.Storage.History).
		Str("leaderboard", cfg.Storage.Leaderboard).
		Bool("publisher", c.Publisher != nil).
		Msg("container initialized")
	return c, nil
}

func (c *Container) buildStores(ctx context.Context) error {
	cfg := c.Config
	retain := cfg.Retention.HistoryPerSymbol

	var (
		rdb  *redisstore.Client
		pool *postgres.Pool
	)
	if cfg.Storage.History == config.BackendRedis || cfg.Storage.Leaderboard == config.BackendRedis {
		client, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rdb = client
		c.closers = append(c.closers, client.Close)
		c.Log.Info().Str("addr", cfg.Storage.Redis.Addr).Msg("connected to redis")
	}
	if cfg.Storage.History == config.BackendPostgres || cfg.Storage.Leaderboard == config.BackendPostgres {
		p, err := postgres.NewPool(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		pool = p
		c.closers = append(c.closers, func() error { p.Close(); return nil })

		if cfg.Storage.Postgres.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, p)
			if err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
			c.Log.Info().Strs("applied", applied).Msg("postgres migrations done")
		}
		c.Log.Info().Str("dsn", redactDSN(cfg.Storage.Postgres.DSN)).Msg("connected to postgres")
	}

	switch cfg.Storage.History {
	case config.BackendMemory:
		c.History = memory.NewHistoryStore(retain)
	case config.BackendFile:
		c.History = file.NewHistoryStore(cfg.Storage.Dir, retain)
	case config.BackendRedis:
		c.History = redisstore.NewHistoryStore(rdb, cfg.Storage.Redis.Prefix, retain)
	case config.BackendPostgres:
		c.History = postgres.NewHistoryStore(pool)
	case config.BackendClickHouse:
		conn, err := openClickHouse(ctx, cfg.Storage.ClickHouse)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, conn.Close)
		c.History = chstore.NewHistoryStore(conn)
		c.Log.Info().Str("dsn", redactDSN(cfg.Storage.ClickHouse.DSN)).Msg("connected to clickhouse")
	default:
		return fmt.Errorf("%w: history backend %q", config.ErrInvalidConfig, cfg.Storage.History)
	}

	switch cfg.Storage.Leaderboard {
	case config.BackendMemory:
		c.Leaderboards = memory.NewLeaderboardStore()
	case config.BackendFile:
		c.Leaderboards = file.NewLeaderboardStore(cfg.Storage.Dir)
	case config.BackendRedis:
		c.Leaderboards = redisstore.NewLeaderboardStore(rdb, cfg.Storage.Redis.Prefix)
	case config.BackendPostgres:
		c.Leaderboards = postgres.NewLeaderboardStore(pool)
	default:
		return fmt.Errorf("%w: leaderboard backend %q", config.ErrInvalidConfig, cfg.Storage.Leaderboard)
	}
	return nil
}

func openClickHouse(ctx context.Context, cfg config.DSNConfig) (*chstore.Conn, error) {
	if cfg.Migrate {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return conn, nil
	}
	conn, err := chstore.NewConn(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	return conn, nil
}

func (c *Container) buildPublisher() error {
	nc := c.Config.PubSub.NATS
	if nc.URL == "" {
		return nil
	}

	client, err := natspub.Connect(natspub.Config{URL: nc.URL}, c.Log)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, client.Close)

	c.Publisher = pubsub.WithBreaker(client, pubsub.BreakerConfig{
		Name:                "nats",
		ConsecutiveFailures: nc.BreakerFailures,
		Timeout:             nc.BreakerTimeout,
	}, c.Log)
	return nil
}

func (c *Container) buildEngine() error {
	cfg := c.Config

	axis, err := kinetics.ParseAxis(cfg.Derivative.Axis)
	if err != nil {
		return err
	}
	plan, err := cfg.NormalizationPlan()
	if err != nil {
		return err
	}
	dir, err := normalization.ParseDirection(cfg.Normalization.RankDirection)
	if err != nil {
		return err
	}
	normalizer, err := normalization.NewEngine(plan, dir)
	if err != nil {
		return err
	}
	scorer, err := ranking.FromConfig(cfg.Ranking.Scorer, cfg.Ranking.Weights)
	if err != nil {
		return err
	}
	policy, err := streak.ParsePolicy(cfg.Streaks.Policy)
	if err != nil {
		return err
	}
	merger, err := streak.NewMerger(policy)
	if err != nil {
		return err
	}

	engine, err := pipeline.New(pipeline.Options{
		History:      c.History,
		Leaderboards: c.Leaderboards,
		Kinetics:     kinetics.NewEngine(axis, cfg.Derivative.Fallback),
		Windows: kinetics.Windows{
			Velocity:     cfg.Windows.Velocity,
			Acceleration: cfg.Windows.Acceleration,
		},
		Normalizer:          normalizer,
		Merger:              merger,
		Ranker:              ranking.NewRanker(scorer),
		Lookback:            cfg.Lookback(),
		MaxLength:           cfg.Limits.MaxLeaderboardLength,
		ChunkSize:           cfg.Limits.ChunkSize,
		PreviewSkipsPersist: cfg.Features.PreviewSkipsPersist,
		Retention: streak.Retention{
			MaxConsecutiveAbsences: cfg.Retention.MaxConsecutiveAbsences,
			MaxInactiveMs:          cfg.Retention.MaxInactive.Milliseconds(),
		},
		PruneOnIngest: cfg.Retention.Enabled,
		Publisher:     pubsub.Fanout(c.Hub, c.Publisher),
		SubjectPrefix: cfg.PubSub.NATS.SubjectPrefix,
		Timeout:       cfg.Run.Timeout,
		Locks:         keyedmutex.New(),
		Metrics:       c.Metrics,
		Logger:        c.Log,
	})
	if err != nil {
		return err
	}
	c.Engine = engine
	return nil
}

// redactDSN drops credentials and query parameters from a DSN for logging.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "?"); i >= 0 {
		dsn = dsn[:i]
	}
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
