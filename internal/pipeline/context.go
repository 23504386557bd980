package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"leaderboard-kinetics/internal/domain"
)

// Mode selects what a run is allowed to persist.
type Mode string

const (
	ModeIngest  Mode = "ingest"
	ModePreview Mode = "preview" // full pipeline without the leaderboard persist
	ModePrune   Mode = "prune"
)

// State is a position in the run state machine:
// Idle -> Running(stage)... -> Completed | Failed.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Transition is emitted on every state change.
type Transition struct {
	CorrelationID string
	Tag           string
	State         State
	Stage         string // set while running
}

// RunStats counts what happened during a run.
type RunStats struct {
	Snapshots      int `json:"snapshots"`
	Symbols        int `json:"symbols"`
	Sanitized      int `json:"sanitized"`
	Appended       int `json:"appended"`
	Duplicates     int `json:"duplicates"`
	AppendFailures int `json:"appendFailures"`
	FetchFailures  int `json:"fetchFailures"`
	WarmingUp      int `json:"warmingUp"`
	Trimmed        int `json:"trimmed"`
	Pruned         int `json:"pruned"`
}

// RunContext is the per-run state shared by the stages of one run.
// It is owned by a single run and never shared.
type RunContext struct {
	CorrelationID string
	Tag           string
	Mode          Mode
	StartedAt     time.Time
	NowMs         int64

	State State
	Stage string

	// Batch is the incoming batch after sanitization.
	Batch []domain.Snapshot
	// Symbols lists batch symbols in ascending order.
	Symbols []string
	// Present is the set of batch symbols.
	Present map[string]struct{}
	// BySymbol holds the batch snapshots per symbol, ordered by time.
	BySymbol map[string]domain.HistorySeries

	History  map[string]domain.HistorySeries
	Enriched []domain.EnrichedEntry

	Previous    []domain.LeaderboardEntry
	Leaderboard []domain.LeaderboardEntry
	Removed     []string

	Persisted     bool
	PublishFailed bool
	Stats         RunStats

	log zerolog.Logger
}

type correlationKey struct{}

// WithCorrelationID attaches a caller-chosen correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom returns the correlation id attached to ctx, if any.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}
