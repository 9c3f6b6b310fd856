package services

import (
	"math"
	"slices"
)

// percentile returns the p-th percentile (0..100) of sorted values using
// linear interpolation between closest ranks. sorted must be ascending and
// non-empty.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p / 100
	lo := math.Floor(h)
	hi := math.Ceil(h)
	lower := sorted[int(lo)]
	upper := sorted[int(hi)]
	return lower + (h-lo)*(upper-lower)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// resolutionStats sorts a copy of hours and summarizes it.
func resolutionStats(hours []float64) (meanHours, median, p75, minHours, maxHours float64) {
	sorted := slices.Clone(hours)
	slices.Sort(sorted)
	return mean(sorted), percentile(sorted, 50), percentile(sorted, 75), sorted[0], sorted[len(sorted)-1]
}

func fraction(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
