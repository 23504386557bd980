package kinetics

import "math"

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Sanitize returns v if finite, otherwise fallback.
// Every numeric value entering the pipeline passes through here.
func Sanitize(v, fallback float64) float64 {
	if IsFinite(v) {
		return v
	}
	return fallback
}
