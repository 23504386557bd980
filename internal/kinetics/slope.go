package kinetics

// Slope returns the ordinary least squares slope of ys against xs:
//
//	Σ(xi-x̄)(yi-ȳ) / Σ(xi-x̄)²
//
// Returns 0 for mismatched or empty input and when all xs are equal.
// Inputs must already be finite.
func Slope(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		num += dx * (ys[i] - meanY)
		den += dx * dx
	}

	if den == 0 {
		return 0
	}
	return num / den
}
