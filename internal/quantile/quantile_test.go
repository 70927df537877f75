package quantile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		sorted     []float64
		percentile float64
		want       float64
	}{
		{name: "two values at 90", sorted: []float64{1, 3}, percentile: 90, want: 2.8},
		{name: "median of odd count", sorted: []float64{1, 2, 3, 4, 5}, percentile: 50, want: 3},
		{name: "median of even count", sorted: []float64{1, 2, 3, 4}, percentile: 50, want: 2.5},
		{name: "quarter", sorted: []float64{10, 20, 30, 40, 50}, percentile: 25, want: 20},
		{name: "fractional percentile", sorted: []float64{0, 100}, percentile: 12.5, want: 12.5},
		{name: "lower bound", sorted: []float64{-4, 0, 9}, percentile: 0, want: -4},
		{name: "upper bound", sorted: []float64{-4, 0, 9}, percentile: 100, want: 9},
		{name: "seven values at 90", sorted: []float64{1, 2, 2, 3.141592653589793, 5.5, 6, 7}, percentile: 90, want: 6.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := Compute(tt.sorted, tt.percentile)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, len(tt.sorted), n)
		})
	}
}

func TestComputeShortcuts(t *testing.T) {
	percentiles := []float64{0, 0.5, 33.3, 50, 99.9, 100}

	t.Run("single value", func(t *testing.T) {
		for _, p := range percentiles {
			got, n, err := Compute([]float64{7.25}, p)
			require.NoError(t, err)
			assert.Equal(t, 7.25, got)
			assert.Equal(t, 1, n)
		}
	})

	t.Run("all values equal", func(t *testing.T) {
		for _, p := range percentiles {
			got, n, err := Compute([]float64{2, 2}, p)
			require.NoError(t, err)
			assert.Equal(t, 2.0, got)
			assert.Equal(t, 2, n)
		}
	})

	t.Run("bounds are min and max", func(t *testing.T) {
		sorted := []float64{-3, -1, 0.5, 8, 8, 12}
		lo, _, err := Compute(sorted, 0)
		require.NoError(t, err)
		hi, _, err := Compute(sorted, 100)
		require.NoError(t, err)
		assert.Equal(t, -3.0, lo)
		assert.Equal(t, 12.0, hi)
	})
}

// TestComputeMonotonic checks percentiles never decrease as p grows
func TestComputeMonotonic(t *testing.T) {
	sorted := []float64{-10, -2, 0, 0, 1, 3.5, 3.5, 20}
	prev, _, err := Compute(sorted, 0)
	require.NoError(t, err)
	for p := 1.0; p <= 100; p++ {
		got, _, err := Compute(sorted, p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "percentile %v", p)
		prev = got
	}
}

func TestComputeEmpty(t *testing.T) {
	_, n, err := Compute(nil, 50)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Zero(t, n)
}
