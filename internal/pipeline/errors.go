package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable wraps leaderboard read and write failures.
	// The persisted leaderboard is left untouched.
	ErrStorageUnavailable = errors.New("leaderboard storage unavailable")

	// ErrInvalidBatch is returned when a snapshot cannot be accepted.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrRetentionDisabled is returned by Prune when no retention limit is set.
	ErrRetentionDisabled = errors.New("retention is disabled")
)

// RunError reports where a run failed.
type RunError struct {
	CorrelationID string
	Tag           string
	Stage         string
	Err           error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s (tag %q) failed at stage %s: %v", e.CorrelationID, e.Tag, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
