package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabpipe/pkg/table"
)

func TestTimeOrdered(t *testing.T) {
	// Out-of-order input: the split must sort first.
	tab, err := table.New(
		table.NumericCol("t", []float64{3, 1, 5, 2, 4, 6, 8, 7, 10, 9}),
		table.NumericCol("x", []float64{30, 10, 50, 20, 40, 60, 80, 70, 100, 90}),
	)
	require.NoError(t, err)

	train, test, err := TimeOrdered(tab, "t", 0.3)
	require.NoError(t, err)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, test.Len())

	trainT, _ := train.Col("t")
	testT, _ := test.Col("t")
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7}, trainT.Floats)
	assert.Equal(t, []float64{8, 9, 10}, testT.Floats, "test period strictly follows training")
}

func TestTimeOrderedZeroRatio(t *testing.T) {
	tab, err := table.New(table.NumericCol("t", []float64{2, 1}))
	require.NoError(t, err)
	train, test, err := TimeOrdered(tab, "t", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, train.Len())
	assert.Equal(t, 0, test.Len())
}

func TestTimeOrderedErrors(t *testing.T) {
	tab, err := table.New(table.NumericCol("t", []float64{1}))
	require.NoError(t, err)
	_, _, err = TimeOrdered(tab, "t", 1.0)
	require.Error(t, err)
	_, _, err = TimeOrdered(tab, "missing", 0.2)
	require.Error(t, err)
}

func TestShuffledPreservesPairs(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}}
	y := []float64{10, 20, 30, 40, 50}

	XTrain, XTest, yTrain, yTest := Shuffled(X, y, 0.4, 7)
	assert.Len(t, XTest, 2)
	assert.Len(t, XTrain, 3)

	check := func(X [][]float64, y []float64) {
		for i := range X {
			assert.Equal(t, X[i][0]*10, y[i], "rows and labels stay paired")
		}
	}
	check(XTrain, yTrain)
	check(XTest, yTest)

	// Same seed, same permutation.
	XTrain2, _, _, _ := Shuffled(X, y, 0.4, 7)
	assert.Equal(t, XTrain, XTrain2)
}
