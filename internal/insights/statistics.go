package insights

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
// A zero mean can never flag an anomaly downstream, so the convention is safe.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation (divide by N, not N-1) of
// values around the given mean, or 0 for an empty slice. The baseline window
// is the whole population of interest, not a sample of it.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
