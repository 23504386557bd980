package pipeline

import "context"

// Stage names.
const (
	StageAcquireLock        = "acquire_lock"
	StagePrepareBatch       = "prepare_batch"
	StagePersistHistory     = "persist_history"
	StageFetchHistory       = "fetch_history"
	StageComputeKinetics    = "compute_kinetics"
	StageLoadLeaderboard    = "load_leaderboard"
	StageMergeStreaks       = "merge_streaks"
	StagePrune              = "prune"
	StageRank               = "rank"
	StageTrim               = "trim"
	StagePersistLeaderboard = "persist_leaderboard"
	StageEmitSummary        = "emit_summary"
)

// Stage is one step of a run. A stage reads and extends the RunContext;
// the only side effects allowed are calls to the engine's storage and
// publishing ports. A returned error fails the whole run.
type Stage interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, rc *RunContext) error
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, rc *RunContext) error { return s.fn(ctx, rc) }

func newStage(name string, fn func(ctx context.Context, rc *RunContext) error) Stage {
	return stageFunc{name: name, fn: fn}
}
