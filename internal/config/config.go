// Package config loads the YAML configuration of the leaderboard service.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/kinetics"
	"leaderboard-kinetics/internal/normalization"
	"leaderboard-kinetics/internal/ranking"
	"leaderboard-kinetics/internal/streak"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "LEADERBOARD_CONFIG"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Windows       WindowsConfig       `yaml:"windows"`
	LookbackCap   int                 `yaml:"lookbackCap"` // overrides the derived lookback when > 0
	Limits        LimitsConfig        `yaml:"limits"`
	Features      FeaturesConfig      `yaml:"features"`
	Derivative    DerivativeConfig    `yaml:"derivative"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Streaks       StreaksConfig       `yaml:"streaks"`
	Retention     RetentionConfig     `yaml:"retention"`
	Run           RunConfig           `yaml:"run"`
	Storage       StorageConfig       `yaml:"storage"`
	PubSub        PubSubConfig        `yaml:"pubsub"`
	Logging       LoggingConfig       `yaml:"logging"`
	HTTP          HTTPConfig          `yaml:"http"`
}

type WindowsConfig struct {
	Velocity       int `yaml:"velocity"`       // samples
	Acceleration   int `yaml:"acceleration"`   // samples
	ContextWindows int `yaml:"contextWindows"` // lookback multiplier
}

type LimitsConfig struct {
	MaxLeaderboardLength int `yaml:"maxLeaderboardLength"`
	ChunkSize            int `yaml:"chunkSize"` // persistence fan-out batch size
}

type FeaturesConfig struct {
	PreviewSkipsPersist bool `yaml:"previewSkipsPersist"` // dry-run: skip the leaderboard persist stage
}

type DerivativeConfig struct {
	Axis     string  `yaml:"axis"` // index|time
	Fallback float64 `yaml:"fallback"`
}

type NormalizationConfig struct {
	PctVelocity     string `yaml:"pctVelocity"`
	PctAcceleration string `yaml:"pctAcceleration"`
	VolVelocity     string `yaml:"volVelocity"`
	VolAcceleration string `yaml:"volAcceleration"`
	RankDirection   string `yaml:"rankDirection"` // ascending|descending
}

type RankingConfig struct {
	Scorer  string          `yaml:"scorer"` // WEIGHTED_SUM|PCT_VELOCITY
	Weights ranking.Weights `yaml:"weights"`
}

type StreaksConfig struct {
	Policy string `yaml:"policy"` // appearance|absence
}

type RetentionConfig struct {
	Enabled                bool          `yaml:"enabled"`
	MaxConsecutiveAbsences int           `yaml:"maxConsecutiveAbsences"`
	MaxInactive            time.Duration `yaml:"maxInactive"`
	HistoryPerSymbol       int           `yaml:"historyPerSymbol"`
}

type RunConfig struct {
	Timeout time.Duration `yaml:"timeout"` // 0 disables the per-run deadline
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type DSNConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type StorageConfig struct {
	History     string      `yaml:"history"`     // memory|file|redis|postgres|clickhouse
	Leaderboard string      `yaml:"leaderboard"` // memory|file|redis|postgres
	Dir         string      `yaml:"dir"`
	Redis       RedisConfig `yaml:"redis"`
	Postgres    DSNConfig   `yaml:"postgres"`
	ClickHouse  DSNConfig   `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	SubjectPrefix   string        `yaml:"subjectPrefix"`
	BreakerFailures uint32        `yaml:"breakerFailures"`
	BreakerTimeout  time.Duration `yaml:"breakerTimeout"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type HTTPConfig struct {
	Addr             string        `yaml:"addr"`
	ReadTimeout      time.Duration `yaml:"readTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	MaxBodyBytes     int64         `yaml:"maxBodyBytes"`
	IngestRatePerSec float64       `yaml:"ingestRatePerSec"` // per tag; 0 disables limiting
	IngestBurst      int           `yaml:"ingestBurst"`
}

// Storage backend names.
const (
	BackendMemory     = "memory"
	BackendFile       = "file"
	BackendRedis      = "redis"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Windows: WindowsConfig{
			Velocity:       3,
			Acceleration:   2,
			ContextWindows: 4,
		},
		Limits: LimitsConfig{
			MaxLeaderboardLength: 50,
			ChunkSize:            32,
		},
		Derivative: DerivativeConfig{
			Axis: string(kinetics.AxisIndex),
		},
		Normalization: NormalizationConfig{
			PctVelocity:     string(normalization.StrategyZScore),
			PctAcceleration: string(normalization.StrategyZScore),
			VolVelocity:     string(normalization.StrategyRobustZ),
			VolAcceleration: string(normalization.StrategyRobustZ),
			RankDirection:   string(normalization.Ascending),
		},
		Ranking: RankingConfig{
			Scorer:  ranking.ScorerWeightedSum,
			Weights: ranking.DefaultWeights,
		},
		Streaks: StreaksConfig{
			Policy: string(streak.PolicyAppearance),
		},
		Run: RunConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			History:     BackendMemory,
			Leaderboard: BackendMemory,
			Dir:         "./data",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "lbk",
			},
		},
		PubSub: PubSubConfig{
			NATS: NATSConfig{
				SubjectPrefix:   "leaderboard",
				BreakerFailures: 5,
				BreakerTimeout:  30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 4 << 20,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Warnings lists settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.Windows.Acceleration == 1 {
		// a slope over one velocity sample is always 0
		out = append(out, "windows.acceleration is 1: acceleration signals are always 0")
	}
	return out
}

// Lookback returns how many history points to fetch per symbol:
// LookbackCap when set, otherwise the longest window times ContextWindows.
func (c *Config) Lookback() int {
	if c.LookbackCap > 0 {
		return c.LookbackCap
	}
	w := kinetics.Windows{Velocity: c.Windows.Velocity, Acceleration: c.Windows.Acceleration}
	ctxWindows := c.Windows.ContextWindows
	if ctxWindows < 1 {
		ctxWindows = 1
	}
	return w.MinSamples() * ctxWindows
}

// NormalizationPlan resolves the per-signal strategies.
func (c *Config) NormalizationPlan() (normalization.Plan, error) {
	names := map[domain.Signal]string{
		domain.SignalPctVelocity:     c.Normalization.PctVelocity,
		domain.SignalPctAcceleration: c.Normalization.PctAcceleration,
		domain.SignalVolVelocity:     c.Normalization.VolVelocity,
		domain.SignalVolAcceleration: c.Normalization.VolAcceleration,
	}
	plan := normalization.Plan{}
	for _, sig := range domain.AllSignals {
		s, err := normalization.ParseStrategy(names[sig])
		if err != nil {
			return nil, fmt.Errorf("normalization.%s: %w", sig, err)
		}
		plan[sig] = s
	}
	return plan, nil
}

// Validate checks ranges and resolves every named strategy once so that
// misconfiguration fails at startup.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Windows.Velocity >= 2, "windows.velocity must be >= 2, got %d", c.Windows.Velocity)
	// 1 is accepted for two-sample setups; see Warnings.
	check(c.Windows.Acceleration >= 1, "windows.acceleration must be >= 1, got %d", c.Windows.Acceleration)
	check(c.Windows.ContextWindows >= 1, "windows.contextWindows must be >= 1, got %d", c.Windows.ContextWindows)
	check(c.LookbackCap >= 0, "lookbackCap must be >= 0, got %d", c.LookbackCap)
	check(c.Limits.MaxLeaderboardLength > 0, "limits.maxLeaderboardLength must be > 0, got %d", c.Limits.MaxLeaderboardLength)
	check(c.Limits.ChunkSize > 0, "limits.chunkSize must be > 0, got %d", c.Limits.ChunkSize)
	check(c.Retention.MaxConsecutiveAbsences >= 0, "retention.maxConsecutiveAbsences must be >= 0")
	check(c.Retention.HistoryPerSymbol >= 0, "retention.historyPerSymbol must be >= 0")

	if c.LookbackCap > 0 {
		w := kinetics.Windows{Velocity: c.Windows.Velocity, Acceleration: c.Windows.Acceleration}
		check(c.LookbackCap >= w.MinSamples(), "lookbackCap %d is shorter than the %d samples the windows need", c.LookbackCap, w.MinSamples())
	}
	if c.Retention.HistoryPerSymbol > 0 {
		check(c.Retention.HistoryPerSymbol >= c.Lookback(), "retention.historyPerSymbol %d is shorter than lookback %d", c.Retention.HistoryPerSymbol, c.Lookback())
	}

	if _, err := kinetics.ParseAxis(c.Derivative.Axis); err != nil {
		errs = append(errs, fmt.Errorf("derivative.axis: %w", err))
	}
	if _, err := c.NormalizationPlan(); err != nil {
		errs = append(errs, err)
	}
	if _, err := normalization.ParseDirection(c.Normalization.RankDirection); err != nil {
		errs = append(errs, fmt.Errorf("normalization.rankDirection: %w", err))
	}
	if _, err := ranking.FromConfig(c.Ranking.Scorer, c.Ranking.Weights); err != nil {
		errs = append(errs, fmt.Errorf("ranking.scorer: %w", err))
	}
	if _, err := streak.ParsePolicy(c.Streaks.Policy); err != nil {
		errs = append(errs, fmt.Errorf("streaks.policy: %w", err))
	}

	switch c.Storage.History {
	case BackendMemory, BackendFile, BackendRedis, BackendPostgres, BackendClickHouse:
	default:
		errs = append(errs, fmt.Errorf("storage.history: unknown backend %q", c.Storage.History))
	}
	switch c.Storage.Leaderboard {
	case BackendMemory, BackendFile, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.leaderboard: unknown backend %q", c.Storage.Leaderboard))
	}
	if c.uses(BackendPostgres) {
		check(c.Storage.Postgres.DSN != "", "storage.postgres.dsn is required")
	}
	if c.uses(BackendClickHouse) {
		check(c.Storage.ClickHouse.DSN != "", "storage.clickhouse.dsn is required")
	}
	if c.uses(BackendFile) {
		check(c.Storage.Dir != "", "storage.dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// uses reports whether either store selects backend.
func (c *Config) uses(backend string) bool {
	return c.Storage.History == backend || c.Storage.Leaderboard == backend
}
