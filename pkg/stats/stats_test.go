package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregates(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	assert.Equal(t, 2.5, Mean(x))
	assert.Equal(t, 10.0, Sum(x))
	assert.Equal(t, 1.0, Min(x))
	assert.Equal(t, 4.0, Max(x))
	lo, hi := MinMax(x)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 4.0, hi)
}

func TestStdIsPopulation(t *testing.T) {
	// Population std of {8, 12} is 2, not the sample value 2*sqrt(2).
	assert.InDelta(t, 2.0, Std([]float64{8, 12}), 1e-12)
}

func TestPercentile(t *testing.T) {
	x := []float64{3, 1, 2, 4}
	assert.InDelta(t, 2.5, Median(x), 1e-12)
	assert.InDelta(t, 1.75, Percentile(x, 25), 1e-12)
	assert.Equal(t, []float64{3, 1, 2, 4}, x, "input stays unsorted")
}

func TestEmptyInputs(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(Std(nil)))
	assert.True(t, math.IsNaN(Min(nil)))
	assert.True(t, math.IsNaN(Max(nil)))
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 0.0, Sum(nil))
}

func TestValid(t *testing.T) {
	got := Valid([]float64{1, math.NaN(), 2, math.NaN()})
	assert.Equal(t, []float64{1, 2}, got)
}
