package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.InDelta(t, 3.0, Mean([]float64{1, 2, 3, 4, 5}), 1e-9)
	assert.InDelta(t, -1.5, Mean([]float64{-1, -2}), 1e-9)
	assert.True(t, math.IsNaN(Mean(nil)), "empty input should yield NaN")
}

func TestStandardDeviationIsPopulation(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, StandardDeviation(values, Mean(values)), 1e-9)
	assert.InDelta(t, 2.0, StdDev(values), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{3, 3, 3}))
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "min", p: 0, want: 10},
		{name: "integral index", p: 25, want: 20},
		{name: "median", p: 50, want: 30},
		{name: "interpolated", p: 10, want: 14},
		{name: "interpolated upper", p: 90, want: 46},
		{name: "max", p: 100, want: 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Percentile(sorted, tc.p), 1e-9)
		})
	}

	assert.True(t, math.IsNaN(Percentile(nil, 50)))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 75))
}

func TestLinearTrendSlope(t *testing.T) {
	assert.Greater(t, LinearTrendSlope([]float64{1, 2, 3, 4, 5}), 0.0)
	assert.Less(t, LinearTrendSlope([]float64{5, 4, 3, 2, 1}), 0.0)
	assert.InDelta(t, 0.0, LinearTrendSlope([]float64{3, 3, 3, 3, 3}), 1e-9)
	assert.InDelta(t, 2.0, LinearTrendSlope([]float64{1, 3, 5, 7}), 1e-9)
	assert.Equal(t, 0.0, LinearTrendSlope([]float64{42}))
	assert.Equal(t, 0.0, LinearTrendSlope(nil))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(1.4, 0, 1))
	assert.Equal(t, 0.3, Clamp(0.3, 0, 1))
}

func TestFinite(t *testing.T) {
	assert.Equal(t, math.MaxFloat64, Finite(math.Inf(1)))
	assert.Equal(t, -math.MaxFloat64, Finite(math.Inf(-1)))
	assert.Equal(t, 0.0, Finite(math.NaN()))
	assert.Equal(t, 2.5, Finite(2.5))
}
