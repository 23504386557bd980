package ranking

import (
	"errors"
	"fmt"
	"strings"

	"leaderboard-kinetics/internal/domain"
)

// Scorer turns normalized signals into one composite score.
type Scorer interface {
	Name() string
	Score(normalized domain.Kinetics) float64
}

// Scorer names.
const (
	ScorerWeightedSum = "WEIGHTED_SUM"
	ScorerPctVelocity = "PCT_VELOCITY"
)

// ErrUnknownScorer is returned for an unrecognized scorer name.
var ErrUnknownScorer = errors.New("unknown ranking scorer")

// Weights are the per-signal coefficients of WeightedSum.
type Weights struct {
	PctVelocity     float64 `yaml:"pctVelocity" json:"pctVelocity"`
	PctAcceleration float64 `yaml:"pctAcceleration" json:"pctAcceleration"`
	VolVelocity     float64 `yaml:"volVelocity" json:"volVelocity"`
	VolAcceleration float64 `yaml:"volAcceleration" json:"volAcceleration"`
}

// DefaultWeights favours price momentum over volume.
var DefaultWeights = Weights{
	PctVelocity:     1.0,
	PctAcceleration: 0.5,
	VolVelocity:     0.5,
	VolAcceleration: 0.25,
}

// WeightedSum scores by a linear combination of normalized signals.
type WeightedSum struct {
	Weights Weights
}

// Name implements Scorer.
func (WeightedSum) Name() string { return ScorerWeightedSum }

// Score implements Scorer.
func (s WeightedSum) Score(n domain.Kinetics) float64 {
	return s.Weights.PctVelocity*n.PctVelocity +
		s.Weights.PctAcceleration*n.PctAcceleration +
		s.Weights.VolVelocity*n.VolVelocity +
		s.Weights.VolAcceleration*n.VolAcceleration
}

// PctVelocity scores by normalized price velocity alone.
type PctVelocity struct{}

// Name implements Scorer.
func (PctVelocity) Name() string { return ScorerPctVelocity }

// Score implements Scorer.
func (PctVelocity) Score(n domain.Kinetics) float64 {
	return n.PctVelocity
}

// FromConfig creates a Scorer by name. Empty selects WEIGHTED_SUM.
// A zero Weights value selects DefaultWeights.
func FromConfig(name string, weights Weights) (Scorer, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", ScorerWeightedSum:
		if weights == (Weights{}) {
			weights = DefaultWeights
		}
		return WeightedSum{Weights: weights}, nil
	case ScorerPctVelocity:
		return PctVelocity{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, name)
	}
}
