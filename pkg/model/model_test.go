package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainRejectsBadData(t *testing.T) {
	m := NewLogisticRegression(0.1, 5, 0)

	cases := []struct {
		name string
		X    [][]float64
		y    []float64
	}{
		{"empty", nil, nil},
		{"misaligned", [][]float64{{1}}, []float64{0, 1}},
		{"no features", [][]float64{{}, {}}, []float64{0, 1}},
		{"ragged", [][]float64{{1, 2}, {3}}, []float64{0, 1}},
		{"nan label", [][]float64{{1}, {2}}, []float64{0, math.NaN()}},
		{"non binary", [][]float64{{1}, {2}}, []float64{0, 2}},
		{"single class", [][]float64{{1}, {2}}, []float64{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Train(tc.X, tc.y)
			var trainErr *TrainingError
			require.ErrorAs(t, err, &trainErr)
		})
	}
}

func TestTrainSeparableData(t *testing.T) {
	// One feature, classes well apart: the model must learn the boundary.
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		X = append(X, []float64{float64(i)*0.1 - 3})
		y = append(y, 0)
		X = append(X, []float64{float64(i)*0.1 + 3})
		y = append(y, 1)
	}

	m := NewLogisticRegression(0.5, 200, 8)
	st, err := m.Train(X, y)
	require.NoError(t, err)

	pred, err := m.Predict(st, X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, Accuracy(y, pred), 0.95)
}

func TestTrainIsDeterministic(t *testing.T) {
	X := [][]float64{{-2}, {-1}, {1}, {2}}
	y := []float64{0, 0, 1, 1}

	m := NewLogisticRegression(0.3, 50, 2)
	st1, err := m.Train(X, y)
	require.NoError(t, err)
	st2, err := m.Train(X, y)
	require.NoError(t, err)
	assert.Equal(t, st1.(*LogitState).W, st2.(*LogitState).W)
	assert.Equal(t, st1.(*LogitState).B, st2.(*LogitState).B)
}

func TestPredictThreshold(t *testing.T) {
	m := NewLogisticRegression(0.1, 1, 0)
	st := &LogitState{W: []float64{1}, B: 0}

	pred, err := m.Predict(st, [][]float64{{-5}, {0}, {5}})
	require.NoError(t, err)
	// sigmoid(0) = 0.5, which sits on the positive side of the threshold.
	assert.Equal(t, []float64{0, 1, 1}, pred)
}

func TestPredictProbaValidation(t *testing.T) {
	m := NewLogisticRegression(0.1, 1, 0)

	_, err := m.PredictProba("not a state", [][]float64{{1}})
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)

	st := &LogitState{W: []float64{1, 2}}
	_, err = m.PredictProba(st, [][]float64{{1}})
	require.ErrorAs(t, err, &trainErr, "feature count mismatch")

	out, err := m.PredictProba(st, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPredictProbaMatchesSequentialScore(t *testing.T) {
	m := NewLogisticRegression(0.1, 1, 0)
	st := &LogitState{W: []float64{0.5, -0.25}, B: 0.1}

	X := make([][]float64, 100)
	for i := range X {
		X[i] = []float64{float64(i) * 0.1, float64(i) * -0.05}
	}
	got, err := m.PredictProba(st, X)
	require.NoError(t, err)
	want := scoreRows(st, X)
	assert.InDeltaSlice(t, want, got, 1e-15)
}

func TestEncodeTarget(t *testing.T) {
	y, classes := EncodeTarget([]string{"down", "up", "down", "flat", "up"})
	assert.Equal(t, []float64{0, 1, 0, 2, 1}, y)
	assert.Equal(t, map[string]int{"down": 0, "up": 1, "flat": 2}, classes)
}

func TestMetrics(t *testing.T) {
	yTrue := []float64{1, 1, 0, 0, 1, 0}
	yPred := []float64{1, 0, 0, 1, 1, 0}

	assert.InDelta(t, 4.0/6.0, Accuracy(yTrue, yPred), 1e-12)
	assert.Equal(t, 0.0, Accuracy(nil, nil))

	prec, rec, f1 := PrecisionRecallF1(yTrue, yPred)
	assert.InDelta(t, 2.0/3.0, prec, 1e-12)
	assert.InDelta(t, 2.0/3.0, rec, 1e-12)
	assert.InDelta(t, 2.0/3.0, f1, 1e-12)

	prec, rec, f1 = PrecisionRecallF1([]float64{0, 0}, []float64{0, 0})
	assert.Equal(t, 0.0, prec)
	assert.Equal(t, 0.0, rec)
	assert.Equal(t, 0.0, f1)
}
