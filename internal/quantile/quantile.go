// Package quantile computes percentiles over sorted samples using linear
// interpolation between closest ranks.
package quantile

import (
	"errors"
	"math"
)

// ErrEmpty is returned when there is nothing to take a percentile of.
var ErrEmpty = errors.New("quantile: empty input")

// Compute returns the percentile (0..100) of sorted together with the number
// of samples. sorted must already be ascending; it is neither checked nor
// modified.
func Compute(sorted []float64, percentile float64) (float64, int, error) {
	n := len(sorted)
	if n == 0 {
		return 0, 0, ErrEmpty
	}

	first, last := sorted[0], sorted[n-1]
	switch {
	case n == 1:
		return first, n, nil
	case first == last:
		return first, n, nil
	case percentile == 0:
		return first, n, nil
	case percentile == 100:
		return last, n, nil
	}

	rank := float64(n-1) * percentile / 100
	floor := math.Floor(rank)
	lo := int(floor)
	if lo < 0 {
		lo = 0
	} else if lo > n-1 {
		lo = n - 1
	}
	hi := min(n-1, lo+1)
	weight := rank - floor

	return sorted[lo]*(1-weight) + sorted[hi]*weight, n, nil
}
