package model

import (
	"math"
	"math/rand"
	"runtime"
	"sync"

	"tabpipe/pkg/optim"
)

// LogisticRegression is a binary classifier trained with mini-batch SGD.
// The struct holds hyperparameters only; trained weights live in the
// returned State so one estimator can train many independent models.
type LogisticRegression struct {
	Lr        float64
	Epochs    int
	BatchSize int
	// Seed fixes weight initialization so runs are reproducible.
	Seed int64
}

// NewLogisticRegression returns an estimator with the given
// hyperparameters.
func NewLogisticRegression(lr float64, epochs, batchSize int) *LogisticRegression {
	return &LogisticRegression{Lr: lr, Epochs: epochs, BatchSize: batchSize, Seed: 1}
}

// LogitState holds trained weights and bias.
type LogitState struct {
	W []float64
	B float64
}

// Train fits weights on X, y. Labels must be 0/1; a single distinct label
// value is rejected as degenerate.
func (m *LogisticRegression) Train(X [][]float64, y []float64) (State, error) {
	if len(X) == 0 || len(y) != len(X) {
		return nil, &TrainingError{Reason: "empty or misaligned training data"}
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return nil, &TrainingError{Reason: "no feature columns"}
	}
	for _, row := range X {
		if len(row) != nFeatures {
			return nil, &TrainingError{Reason: "ragged feature matrix"}
		}
	}
	distinct := map[float64]struct{}{}
	for _, v := range y {
		if math.IsNaN(v) {
			return nil, &TrainingError{Reason: "NaN label value"}
		}
		if v != 0 && v != 1 {
			return nil, &TrainingError{Reason: "labels must be 0 or 1"}
		}
		distinct[v] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil, &TrainingError{Reason: "labels are a single class"}
	}

	// Small random weights to break symmetry.
	rng := rand.New(rand.NewSource(m.Seed))
	st := &LogitState{W: make([]float64, nFeatures)}
	for i := range st.W {
		st.W[i] = rng.NormFloat64() * 0.01
	}

	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = len(X)
	}
	opt := optim.NewSGD(m.Lr)

	for ep := 0; ep < m.Epochs; ep++ {
		for start := 0; start < len(X); start += batchSize {
			end := start + batchSize
			if end > len(X) {
				end = len(X)
			}
			bX, bY := X[start:end], y[start:end]

			p := scoreRows(st, bX)
			_, dy := bceGrad(bY, p)

			gW := make([]float64, nFeatures)
			gb := 0.0
			for i, row := range bX {
				d := dy[i]
				for j, xij := range row {
					gW[j] += d * xij
				}
				gb += d
			}
			opt.Step(st.W, gW)
			st.B -= m.Lr * gb
		}
	}
	return st, nil
}

// Predict returns 0/1 class labels at a 0.5 probability threshold.
func (m *LogisticRegression) Predict(s State, X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(s, X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

// PredictProba returns p(y=1) per row, fanning the rows out across
// GOMAXPROCS workers.
func (m *LogisticRegression) PredictProba(s State, X [][]float64) ([]float64, error) {
	st, ok := s.(*LogitState)
	if !ok || st == nil {
		return nil, &TrainingError{Reason: "state is not a trained logistic model"}
	}
	if len(X) == 0 {
		return nil, nil
	}
	if len(X[0]) != len(st.W) {
		return nil, &TrainingError{Reason: "feature count mismatch between model and input"}
	}

	out := make([]float64, len(X))
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (len(X) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > len(X) {
			end = len(X)
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				sum := st.B
				for j, v := range X[i] {
					sum += st.W[j] * v
				}
				out[i] = sigmoid(sum)
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}

func scoreRows(st *LogitState, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		sum := st.B
		for j, v := range row {
			sum += st.W[j] * v
		}
		out[i] = sigmoid(sum)
	}
	return out
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// bceGrad returns the binary cross-entropy loss and its gradient with
// respect to the predicted probabilities.
func bceGrad(yTrue, yPred []float64) (float64, []float64) {
	n := len(yTrue)
	s := 0.0
	grad := make([]float64, n)
	for i := 0; i < n; i++ {
		p := math.Min(math.Max(yPred[i], 1e-12), 1-1e-12)
		y := yTrue[i]
		s += -(y*math.Log(p) + (1-y)*math.Log(1-p))
		grad[i] = (p - y) / float64(n)
	}
	return s / float64(n), grad
}
