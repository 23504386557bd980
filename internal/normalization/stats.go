package normalization

import (
	"math"
	"sort"
)

// madScale makes the median absolute deviation a consistent estimator of
// the standard deviation for normally distributed data.
const madScale = 1.4826

// Stats is the cross-sectional summary of one signal in one batch.
// Computed once per batch and shared by every Apply call.
type Stats struct {
	Count  int
	Mean   float64
	Stddev float64 // population standard deviation
	Min    float64
	Max    float64
	Median float64
	MAD    float64 // median absolute deviation from Median

	sorted []float64
}

// ComputeStats summarizes values. Non-finite values are ignored.
func ComputeStats(values []float64) Stats {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Stats{}
	}
	sort.Float64s(sorted)

	mean := computeMean(sorted)
	median := computeMedian(sorted)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)

	return Stats{
		Count:  len(sorted),
		Mean:   mean,
		Stddev: computeStddev(sorted, mean),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: median,
		MAD:    computeMedian(deviations),
		sorted: sorted,
	}
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates the population standard deviation (n denominator).
// The batch is the whole population being ranked, not a sample of it.
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n))
}

// computeMedian returns the median. sorted must be pre-sorted ASC.
func computeMedian(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
