// Package normalization rescales derivative signals against the
// population of the current batch so that symbols with different
// baseline scales are comparable.
package normalization

import (
	"fmt"

	"leaderboard-kinetics/internal/domain"
)

// Plan selects a strategy per signal.
type Plan map[domain.Signal]Strategy

// DefaultPlan z-scores price signals and robust-z-scores volume signals,
// which are heavy tailed.
func DefaultPlan() Plan {
	return Plan{
		domain.SignalPctVelocity:     StrategyZScore,
		domain.SignalPctAcceleration: StrategyZScore,
		domain.SignalVolVelocity:     StrategyRobustZ,
		domain.SignalVolAcceleration: StrategyRobustZ,
	}
}

// Engine normalizes whole batches.
type Engine struct {
	plan Plan
	dir  Direction
}

// NewEngine validates the plan and creates an Engine.
// Signals missing from the plan use StrategyNone.
func NewEngine(plan Plan, dir Direction) (*Engine, error) {
	resolved := make(Plan, len(domain.AllSignals))
	for _, sig := range domain.AllSignals {
		s, ok := plan[sig]
		if !ok {
			s = StrategyNone
		}
		parsed, err := ParseStrategy(string(s))
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", sig, err)
		}
		resolved[sig] = parsed
	}

	parsedDir, err := ParseDirection(string(dir))
	if err != nil {
		return nil, err
	}

	return &Engine{plan: resolved, dir: parsedDir}, nil
}

// Strategy returns the strategy used for sig.
func (e *Engine) Strategy(sig domain.Signal) Strategy {
	return e.plan[sig]
}

// NormalizeBatch fills Normalized on every entry. Warming-up entries are
// excluded from the population and receive zero normalized signals.
func (e *Engine) NormalizeBatch(entries []*domain.EnrichedEntry) error {
	for _, sig := range domain.AllSignals {
		population := make([]float64, 0, len(entries))
		for _, entry := range entries {
			if !entry.WarmingUp {
				population = append(population, entry.Kinetics.Get(sig))
			}
		}
		stats := ComputeStats(population)

		for _, entry := range entries {
			if entry.WarmingUp {
				entry.Normalized.Set(sig, 0)
				continue
			}
			v, err := Apply(entry.Kinetics.Get(sig), stats, e.plan[sig], e.dir)
			if err != nil {
				return fmt.Errorf("normalize %s for %s: %w", sig, entry.Symbol, err)
			}
			entry.Normalized.Set(sig, v)
		}
	}
	return nil
}
