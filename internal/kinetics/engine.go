// Package kinetics estimates velocity and acceleration of snapshot fields
// over trailing history windows.
package kinetics

import (
	"errors"
	"fmt"
	"strings"

	"leaderboard-kinetics/internal/domain"
)

// Axis selects the x-values used for regression.
type Axis string

// Supported regression axes.
const (
	// AxisIndex uses evenly spaced positions 0..w-1.
	AxisIndex Axis = "index"
	// AxisTime uses snapshot timestamps in seconds.
	AxisTime Axis = "time"
)

// ErrUnknownAxis is returned for an unrecognized axis name.
var ErrUnknownAxis = errors.New("unknown derivative axis")

// ParseAxis resolves an axis name. Empty selects AxisIndex.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToLower(strings.TrimSpace(s))) {
	case "", AxisIndex:
		return AxisIndex, nil
	case AxisTime:
		return AxisTime, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAxis, s)
	}
}

// Windows configures the sample counts for each derivative.
type Windows struct {
	Velocity     int
	Acceleration int
}

// MinSamples returns the history length required before an entry leaves warm-up.
func (w Windows) MinSamples() int {
	if w.Acceleration+1 > w.Velocity {
		return w.Acceleration + 1
	}
	return w.Velocity
}

// Engine computes windowed OLS derivatives.
type Engine struct {
	axis     Axis
	fallback float64
}

// NewEngine creates an Engine. fallback replaces any computation whose
// window contains a non-finite point.
func NewEngine(axis Axis, fallback float64) *Engine {
	if axis == "" {
		axis = AxisIndex
	}
	return &Engine{axis: axis, fallback: Sanitize(fallback, 0)}
}

// Axis returns the configured regression axis.
func (e *Engine) Axis() Axis {
	return e.axis
}

// Fallback returns the value substituted for non-finite results.
func (e *Engine) Fallback() float64 {
	return e.fallback
}

// Velocity returns the OLS slope of field over the last w points.
// Returns 0 if the series has fewer than w points.
func (e *Engine) Velocity(series domain.HistorySeries, field domain.Field, w int) float64 {
	if w <= 0 || len(series) < w {
		return 0
	}
	v, ok := e.slope(series[len(series)-w:], field)
	if !ok {
		return e.fallback
	}
	return v
}

// Acceleration returns the first difference of velocity: the slope over
// the last w points minus the slope over the w points ending one earlier.
// Requires w+1 points; returns 0 otherwise.
func (e *Engine) Acceleration(series domain.HistorySeries, field domain.Field, w int) float64 {
	n := len(series)
	if w <= 0 || n < w+1 {
		return 0
	}

	vNow, okNow := e.slope(series[n-w:], field)
	vPrev, okPrev := e.slope(series[n-w-1:n-1], field)
	if !okNow || !okPrev {
		return e.fallback
	}
	return vNow - vPrev
}

// Compute returns all four signals for the series, and whether the series
// is still warming up. Warming-up series yield zero signals.
func (e *Engine) Compute(series domain.HistorySeries, w Windows) (domain.Kinetics, bool) {
	if len(series) < w.MinSamples() {
		return domain.Kinetics{}, true
	}

	var k domain.Kinetics
	for _, sig := range domain.AllSignals {
		var v float64
		if sig.IsAcceleration() {
			v = e.Acceleration(series, sig.Field(), w.Acceleration)
		} else {
			v = e.Velocity(series, sig.Field(), w.Velocity)
		}
		k.Set(sig, Sanitize(v, e.fallback))
	}
	return k, false
}

// slope regresses the window. ok is false when any point is non-finite.
func (e *Engine) slope(window domain.HistorySeries, field domain.Field) (float64, bool) {
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, s := range window {
		y := field.Value(s)
		if !IsFinite(y) {
			return 0, false
		}
		ys[i] = y

		if e.axis == AxisTime {
			xs[i] = float64(s.TimestampMs) / 1000
		} else {
			xs[i] = float64(i)
		}
	}

	v := Slope(xs, ys)
	if !IsFinite(v) {
		return 0, false
	}
	return v, true
}
