// Package model exposes the train/predict capability consumed by the batch
// runner, plus the shipped logistic-regression implementation and its
// evaluation metrics.
package model

import "fmt"

// State is the opaque result of training. It is owned by the caller and
// passed read-only into Predict; implementations must not mutate it after
// Train returns.
type State interface{}

// Estimator is the train-once, predict-many capability. Predictions are an
// ordered sequence aligned 1:1 with the input rows.
type Estimator interface {
	Train(X [][]float64, y []float64) (State, error)
	Predict(s State, X [][]float64) ([]float64, error)
}

// TrainingError reports unusable training data: empty matrices, ragged
// feature counts, or degenerate labels.
type TrainingError struct {
	Reason string
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("train: %s", e.Reason)
}

// EncodeTarget maps label values to consecutive class indices 0..k-1 in
// first-appearance order, returning the mapping alongside. Binary
// estimators reject k > 2 at train time.
func EncodeTarget(labels []string) ([]float64, map[string]int) {
	classes := map[string]int{}
	out := make([]float64, len(labels))
	for i, v := range labels {
		idx, ok := classes[v]
		if !ok {
			idx = len(classes)
			classes[v] = idx
		}
		out[i] = float64(idx)
	}
	return out, classes
}
