package normalization

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Strategy names a cross-sectional normalization.
type Strategy string

// Supported strategies.
const (
	StrategyNone    Strategy = "NONE"
	StrategyZScore  Strategy = "Z_SCORE"
	StrategyMinMax  Strategy = "MIN_MAX"
	StrategyRobustZ Strategy = "ROBUST_Z"
	StrategyRank    Strategy = "RANK"
)

// Direction orders values for StrategyRank.
type Direction string

// Rank directions.
const (
	// Ascending maps the smallest value to 0 and the largest to 1.
	Ascending Direction = "ascending"
	// Descending maps the largest value to 0 and the smallest to 1.
	Descending Direction = "descending"
)

// Errors returned when resolving configuration names.
var (
	ErrUnknownStrategy  = errors.New("unknown normalization strategy")
	ErrUnknownDirection = errors.New("unknown rank direction")
)

// ParseStrategy resolves a strategy name. Names are case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToUpper(strings.TrimSpace(name)))
	switch s {
	case StrategyNone, StrategyZScore, StrategyMinMax, StrategyRobustZ, StrategyRank:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// ParseDirection resolves a rank direction. Empty selects Ascending.
func ParseDirection(name string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(name))) {
	case "", Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, name)
	}
}

// Apply normalizes v against precomputed population stats.
// Degenerate populations (empty, flat) yield 0. The only error is an
// unknown strategy.
func Apply(v float64, stats Stats, strategy Strategy, dir Direction) (float64, error) {
	if strategy == StrategyNone {
		return v, nil
	}

	var out float64
	switch strategy {
	case StrategyZScore:
		if stats.Count == 0 || stats.Stddev == 0 {
			return 0, nil
		}
		out = (v - stats.Mean) / stats.Stddev
	case StrategyMinMax:
		if stats.Count == 0 || stats.Max == stats.Min {
			return 0, nil
		}
		out = (v - stats.Min) / (stats.Max - stats.Min)
	case StrategyRobustZ:
		if stats.Count == 0 || stats.MAD == 0 {
			return 0, nil
		}
		out = (v - stats.Median) / (stats.MAD * madScale)
	case StrategyRank:
		out = rankPosition(v, stats.sorted, dir)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(strategy))
	}

	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, nil
	}
	return out, nil
}

// Normalize computes stats for series and applies strategy to v.
// Use ComputeStats plus Apply when normalizing a whole batch.
func Normalize(v float64, series []float64, strategy Strategy, dir Direction) (float64, error) {
	if strategy == StrategyNone {
		return v, nil
	}
	return Apply(v, ComputeStats(series), strategy, dir)
}

// rankPosition returns the fractional position of v in sorted, in [0,1].
// Ties share the position of their first occurrence.
func rankPosition(v float64, sorted []float64, dir Direction) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}

	var below int
	if dir == Descending {
		// count of values strictly greater than v
		below = n - sort.Search(n, func(i int) bool { return sorted[i] > v })
	} else {
		// count of values strictly less than v
		below = sort.SearchFloat64s(sorted, v)
	}
	return float64(below) / float64(n-1)
}
