// Package pipeline runs the leaderboard ingestion pipeline:
// persist history → fetch tails → kinetics + normalization → streak merge
// → rank → trim → persist leaderboard → summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/keyedmutex"
	"leaderboard-kinetics/internal/kinetics"
	"leaderboard-kinetics/internal/normalization"
	"leaderboard-kinetics/internal/observability"
	"leaderboard-kinetics/internal/pubsub"
	"leaderboard-kinetics/internal/ranking"
	"leaderboard-kinetics/internal/storage"
	"leaderboard-kinetics/internal/streak"
)

// Options for creating an Engine.
type Options struct {
	// Required stores
	History      storage.HistoryStore
	Leaderboards storage.LeaderboardStore

	// Computation. Nil values select defaults.
	Kinetics   *kinetics.Engine
	Windows    kinetics.Windows
	Normalizer *normalization.Engine
	Merger     *streak.Merger
	Ranker     *ranking.Ranker

	Lookback  int // history points per symbol; 0 derives from Windows
	MaxLength int // leaderboard cap; 0 disables
	ChunkSize int // I/O fan-out width

	PreviewSkipsPersist bool // every Ingest behaves like Preview
	Retention           streak.Retention
	PruneOnIngest       bool // run the prune stage during ingestion

	// Summary publishing. Nil Publisher disables it.
	Publisher     pubsub.Publisher
	SubjectPrefix string

	Timeout time.Duration // per-run deadline; 0 disables
	Locks   *keyedmutex.KeyedMutex
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	Clock   func() time.Time

	// OnTransition observes state machine changes. Called synchronously.
	OnTransition func(Transition)
}

// Engine orchestrates runs. Runs for the same tag are serialized;
// runs for different tags proceed in parallel.
type Engine struct {
	history      storage.HistoryStore
	leaderboards storage.LeaderboardStore

	kinetics   *kinetics.Engine
	windows    kinetics.Windows
	normalizer *normalization.Engine
	merger     *streak.Merger
	ranker     *ranking.Ranker

	lookback  int
	maxLength int
	chunkSize int

	previewSkipsPersist bool
	retention           streak.Retention
	pruneOnIngest       bool

	publisher     pubsub.Publisher
	subjectPrefix string

	timeout      time.Duration
	locks        *keyedmutex.KeyedMutex
	metrics      *observability.Metrics
	log          zerolog.Logger
	clock        func() time.Time
	onTransition func(Transition)

	ingestStages []Stage
	pruneStages  []Stage
}

// Result is the outcome of a successful run.
type Result struct {
	CorrelationID string
	Tag           string
	Mode          Mode
	Leaderboard   []domain.LeaderboardEntry
	Summary       Summary
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.History == nil || opts.Leaderboards == nil {
		return nil, errors.New("pipeline: history and leaderboard stores are required")
	}

	e := &Engine{
		history:             opts.History,
		leaderboards:        opts.Leaderboards,
		kinetics:            opts.Kinetics,
		windows:             opts.Windows,
		normalizer:          opts.Normalizer,
		merger:              opts.Merger,
		ranker:              opts.Ranker,
		lookback:            opts.Lookback,
		maxLength:           opts.MaxLength,
		chunkSize:           opts.ChunkSize,
		previewSkipsPersist: opts.PreviewSkipsPersist,
		retention:           opts.Retention,
		pruneOnIngest:       opts.PruneOnIngest,
		publisher:           opts.Publisher,
		subjectPrefix:       opts.SubjectPrefix,
		timeout:             opts.Timeout,
		locks:               opts.Locks,
		metrics:             opts.Metrics,
		log:                 opts.Logger,
		clock:               opts.Clock,
		onTransition:        opts.OnTransition,
	}

	if e.kinetics == nil {
		e.kinetics = kinetics.NewEngine(kinetics.AxisIndex, 0)
	}
	if e.windows.Velocity == 0 && e.windows.Acceleration == 0 {
		e.windows = kinetics.Windows{Velocity: 3, Acceleration: 2}
	}
	if e.normalizer == nil {
		n, err := normalization.NewEngine(normalization.DefaultPlan(), normalization.Ascending)
		if err != nil {
			return nil, err
		}
		e.normalizer = n
	}
	if e.merger == nil {
		m, err := streak.NewMerger(streak.PolicyAppearance)
		if err != nil {
			return nil, err
		}
		e.merger = m
	}
	if e.ranker == nil {
		e.ranker = ranking.NewRanker(nil)
	}
	if e.lookback <= 0 {
		e.lookback = e.windows.MinSamples()
	}
	if e.chunkSize <= 0 {
		e.chunkSize = 32
	}
	if e.locks == nil {
		e.locks = keyedmutex.New()
	}
	if e.clock == nil {
		e.clock = time.Now
	}

	e.ingestStages = []Stage{
		newStage(StagePrepareBatch, e.prepareBatch),
		newStage(StagePersistHistory, e.persistHistory),
		newStage(StageFetchHistory, e.fetchHistory),
		newStage(StageComputeKinetics, e.computeKinetics),
		newStage(StageMergeStreaks, e.mergeStreaks),
	}
	if e.pruneOnIngest && e.retention.Enabled() {
		e.ingestStages = append(e.ingestStages, newStage(StagePrune, e.prune))
	}
	e.ingestStages = append(e.ingestStages,
		newStage(StageRank, e.rank),
		newStage(StageTrim, e.trim),
		newStage(StagePersistLeaderboard, e.persistLeaderboard),
		newStage(StageEmitSummary, e.emitSummary),
	)

	e.pruneStages = []Stage{
		newStage(StageLoadLeaderboard, e.loadLeaderboard),
		newStage(StagePrune, e.prune),
		newStage(StagePersistLeaderboard, e.persistLeaderboard),
		newStage(StageEmitSummary, e.emitSummary),
	}

	return e, nil
}

// Stages returns the stage names of an ingestion run in execution order.
func (e *Engine) Stages() []string {
	names := make([]string, len(e.ingestStages))
	for i, s := range e.ingestStages {
		names[i] = s.Name()
	}
	return names
}

// Ingest runs the full pipeline for batch and persists the new leaderboard.
func (e *Engine) Ingest(ctx context.Context, tag string, batch []domain.Snapshot) (*Result, error) {
	mode := ModeIngest
	if e.previewSkipsPersist {
		mode = ModePreview
	}
	return e.run(ctx, tag, mode, batch, e.ingestStages)
}

// Preview runs the full pipeline but leaves the persisted leaderboard untouched.
func (e *Engine) Preview(ctx context.Context, tag string, batch []domain.Snapshot) (*Result, error) {
	return e.run(ctx, tag, ModePreview, batch, e.ingestStages)
}

// Prune applies the retention policy to the persisted leaderboard of tag.
func (e *Engine) Prune(ctx context.Context, tag string) (*Result, error) {
	if !e.retention.Enabled() {
		return nil, ErrRetentionDisabled
	}
	return e.run(ctx, tag, ModePrune, nil, e.pruneStages)
}

// Leaderboard returns the persisted leaderboard of tag. It does not take
// the tag lock; stores replace leaderboards atomically.
func (e *Engine) Leaderboard(ctx context.Context, tag string) ([]domain.LeaderboardEntry, error) {
	entries, err := e.leaderboards.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return entries, nil
}

func (e *Engine) run(ctx context.Context, tag string, mode Mode, batch []domain.Snapshot, stages []Stage) (*Result, error) {
	id, ok := CorrelationIDFrom(ctx)
	if !ok {
		id = uuid.NewString()
	}
	start := e.clock()

	rc := &RunContext{
		CorrelationID: id,
		Tag:           tag,
		Mode:          mode,
		StartedAt:     start,
		NowMs:         start.UnixMilli(),
		State:         StateIdle,
		Batch:         batch,
		log: e.log.With().
			Str("correlation_id", id).
			Str("tag", tag).
			Str("mode", string(mode)).
			Logger(),
	}

	err := e.execute(ctx, rc, stages)
	e.metrics.RecordRun(string(mode), tag, e.clock().Sub(start), err)
	if err != nil {
		return nil, err
	}

	return &Result{
		CorrelationID: id,
		Tag:           tag,
		Mode:          mode,
		Leaderboard:   rc.Leaderboard,
		Summary:       buildSummary(rc, e.clock()),
	}, nil
}

func (e *Engine) execute(ctx context.Context, rc *RunContext, stages []Stage) error {
	if rc.Tag == "" {
		return e.fail(rc, StagePrepareBatch, fmt.Errorf("%w: empty tag", storage.ErrInvalidInput))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	unlock, err := e.locks.Lock(ctx, rc.Tag)
	if err != nil {
		return e.fail(rc, StageAcquireLock, err)
	}
	defer unlock()

	rc.log.Debug().Int("batch", len(rc.Batch)).Msg("run started")

	for _, stage := range stages {
		e.transition(rc, StateRunning, stage.Name())

		started := time.Now()
		err := stage.Run(ctx, rc)
		elapsed := time.Since(started)
		e.metrics.RecordStage(stage.Name(), elapsed, err)

		if err != nil {
			return e.fail(rc, stage.Name(), err)
		}
		rc.log.Debug().Str("stage", stage.Name()).Dur("duration", elapsed).Msg("stage completed")
	}

	e.transition(rc, StateCompleted, "")
	return nil
}

func (e *Engine) fail(rc *RunContext, stage string, err error) error {
	e.transition(rc, StateFailed, stage)
	rc.log.Error().Err(err).Str("stage", stage).Msg("run failed")
	return &RunError{
		CorrelationID: rc.CorrelationID,
		Tag:           rc.Tag,
		Stage:         stage,
		Err:           err,
	}
}

func (e *Engine) transition(rc *RunContext, state State, stage string) {
	rc.State = state
	rc.Stage = stage
	if e.onTransition != nil {
		e.onTransition(Transition{
			CorrelationID: rc.CorrelationID,
			Tag:           rc.Tag,
			State:         state,
			Stage:         stage,
		})
	}
}
