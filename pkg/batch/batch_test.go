package batch

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabpipe/pkg/clean"
	"tabpipe/pkg/feature"
	"tabpipe/pkg/model"
	"tabpipe/pkg/norm"
	"tabpipe/pkg/table"
)

// stubEstimator counts calls and predicts a constant, so tests exercise
// orchestration without real training.
type stubEstimator struct {
	trainErr   error
	trainCalls atomic.Int64
	predCalls  atomic.Int64
}

func (s *stubEstimator) Train(X [][]float64, y []float64) (model.State, error) {
	s.trainCalls.Add(1)
	if s.trainErr != nil {
		return nil, s.trainErr
	}
	return "trained", nil
}

func (s *stubEstimator) Predict(st model.State, X [][]float64) ([]float64, error) {
	s.predCalls.Add(1)
	out := make([]float64, len(X))
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

// dataset builds a small labeled time series with columns t, x, Target.
func dataset(t *testing.T, id string, withX bool) Dataset {
	t.Helper()
	n := 10
	ts := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = float64(i)
		xs[i] = float64(i * i)
		ys[i] = float64(i % 2)
	}
	cols := []*table.Column{
		table.NumericCol("t", ts),
		table.NumericCol("Target", ys),
	}
	if withX {
		cols = append(cols, table.NumericCol("x", xs))
	}
	tab, err := table.New(cols...)
	require.NoError(t, err)
	return Dataset{ID: id, Table: tab}
}

func testConfig() Config {
	return Config{
		TrainingDataset: "ds1",
		Keys:            feature.Keys{TimeKey: "t"},
		Specs: []feature.Spec{
			{Name: "xLag1", Kind: feature.Lag, Source: "x", Offset: 1},
			{Name: "xRoll2", Kind: feature.Rolling, Source: "x", Window: 2, MinPeriods: 1, Agg: feature.AggMean},
		},
		LabelColumn: "Target",
		NormKind:    norm.ZScore,
		Clean:       clean.Options{Missing: clean.FillNone},
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	// Dataset 3 lacks the feature source column: its build must fail
	// while the other four complete.
	datasets := []Dataset{
		dataset(t, "ds1", true),
		dataset(t, "ds2", true),
		dataset(t, "ds3", false),
		dataset(t, "ds4", true),
		dataset(t, "ds5", true),
	}
	est := &stubEstimator{}
	runner := New(testConfig(), est, nil)

	summary, err := runner.Run(datasets)
	require.NoError(t, err, "one bad dataset must not abort the batch")
	require.Len(t, summary.Results, 5)

	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	var failed *Result
	for i := range summary.Results {
		if summary.Results[i].Dataset == "ds3" {
			failed = &summary.Results[i]
		} else {
			assert.Equal(t, StatusDone, summary.Results[i].Status, summary.Results[i].Dataset)
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, StatusFailed, failed.Status)

	var dsErr *DatasetError
	require.ErrorAs(t, failed.Err, &dsErr)
	assert.Equal(t, "ds3", dsErr.Dataset)
	assert.Equal(t, StatusFeatured, dsErr.Step)
	var specErr *feature.SpecError
	assert.ErrorAs(t, failed.Err, &specErr)
}

func TestFatalTrainError(t *testing.T) {
	datasets := []Dataset{
		dataset(t, "ds1", true),
		dataset(t, "ds2", true),
	}
	est := &stubEstimator{trainErr: &model.TrainingError{Reason: "degenerate labels"}}
	runner := New(testConfig(), est, nil)

	summary, err := runner.Run(datasets)
	require.Error(t, err)
	assert.Nil(t, summary, "no dataset may be processed after a fatal fit")
	var trainErr *model.TrainingError
	assert.ErrorAs(t, err, &trainErr)
	assert.Equal(t, int64(0), est.predCalls.Load())
}

func TestMissingTrainingDatasetIsFatal(t *testing.T) {
	est := &stubEstimator{}
	runner := New(testConfig(), est, nil)
	_, err := runner.Run([]Dataset{dataset(t, "other", true)})
	require.Error(t, err)
	assert.Equal(t, int64(0), est.trainCalls.Load())
}

func TestFitOnceDiscipline(t *testing.T) {
	datasets := []Dataset{
		dataset(t, "ds1", true),
		dataset(t, "ds2", true),
		dataset(t, "ds3", true),
		dataset(t, "ds4", true),
	}
	est := &stubEstimator{}
	runner := New(testConfig(), est, nil)

	summary, err := runner.Run(datasets)
	require.NoError(t, err)
	assert.Equal(t, int64(1), est.trainCalls.Load(), "train runs exactly once per run")
	// One predict per non-training dataset; no test split configured.
	assert.Equal(t, int64(3), est.predCalls.Load())
	assert.Equal(t, 4, summary.Succeeded)
}

func TestTestSplitMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.TestRatio = 0.3
	datasets := []Dataset{dataset(t, "ds1", true), dataset(t, "ds2", true)}
	est := &stubEstimator{}
	runner := New(cfg, est, nil)

	summary, err := runner.Run(datasets)
	require.NoError(t, err)
	// Stub predicts all-ones; the tail rows alternate labels.
	assert.Greater(t, summary.TestAccuracy, 0.0)
	for _, res := range summary.Results {
		if res.Dataset == "ds1" {
			require.NotNil(t, res.Predictions)
			assert.True(t, res.Predictions.Has(PredColumn))
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	mk := func() []Dataset {
		return []Dataset{
			dataset(t, "ds1", true),
			dataset(t, "ds2", true),
			dataset(t, "ds3", false),
			dataset(t, "ds4", true),
			dataset(t, "ds5", true),
			dataset(t, "ds6", true),
		}
	}
	seqCfg := testConfig()
	seq, err := New(seqCfg, &stubEstimator{}, nil).Run(mk())
	require.NoError(t, err)

	parCfg := testConfig()
	parCfg.Workers = 4
	par, err := New(parCfg, &stubEstimator{}, nil).Run(mk())
	require.NoError(t, err)

	assert.Equal(t, seq.Succeeded, par.Succeeded)
	assert.Equal(t, seq.Failed, par.Failed)
	require.Len(t, par.Results, len(seq.Results))
	for i := range seq.Results {
		assert.Equal(t, seq.Results[i].Dataset, par.Results[i].Dataset, "result slots keep dataset order")
		assert.Equal(t, seq.Results[i].Status, par.Results[i].Status)
	}
}

func TestWarmupRowsGetNullPredictions(t *testing.T) {
	// The first row of each partition has a NaN lag feature; it must get
	// a null prediction instead of a silent class 0, and the per-dataset
	// accuracy must only count scored rows.
	datasets := []Dataset{dataset(t, "ds1", true), dataset(t, "ds2", true)}
	est := &stubEstimator{}
	runner := New(testConfig(), est, nil)

	summary, err := runner.Run(datasets)
	require.NoError(t, err)
	for _, res := range summary.Results {
		if res.Dataset != "ds2" {
			continue
		}
		require.NotNil(t, res.Predictions)
		pc, ok := res.Predictions.Col(PredColumn)
		require.True(t, ok)
		assert.True(t, math.IsNaN(pc.Floats[0]), "warmup row must not be scored")
		for i := 1; i < pc.Len(); i++ {
			assert.Equal(t, 1.0, pc.Floats[i], "row %d", i)
		}
		// Labels on scored rows 1..9 alternate 1,0,...; the stub
		// predicts all ones.
		require.True(t, res.Labeled)
		assert.InDelta(t, 5.0/9.0, res.Accuracy, 1e-12)
	}
}

// pickFirstEstimator predicts from the sign of the first feature, so
// search outcomes depend on which subset is evaluated.
type pickFirstEstimator struct{}

func (pickFirstEstimator) Train(X [][]float64, y []float64) (model.State, error) {
	return "trained", nil
}

func (pickFirstEstimator) Predict(st model.State, X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if row[0] > 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func TestFeatureSearchPicksBestSubset(t *testing.T) {
	// Column a carries the label; b and noise are constants. Every subset
	// leading with a scores perfectly, so the first such combination in
	// candidate order must win.
	mk := func(id string) Dataset {
		n := 10
		ts := make([]float64, n)
		as := make([]float64, n)
		bs := make([]float64, n)
		ns := make([]float64, n)
		ys := make([]float64, n)
		for i := 0; i < n; i++ {
			ts[i] = float64(i)
			ys[i] = float64(i % 2)
			as[i] = 2*ys[i] - 1
			bs[i] = 5
			ns[i] = 7
		}
		tab, err := table.New(
			table.NumericCol("t", ts),
			table.NumericCol("a", as),
			table.NumericCol("b", bs),
			table.NumericCol("noise", ns),
			table.NumericCol("Target", ys),
		)
		require.NoError(t, err)
		return Dataset{ID: id, Table: tab}
	}

	cfg := Config{
		TrainingDataset: "ds1",
		Keys:            feature.Keys{TimeKey: "t"},
		LabelColumn:     "Target",
		FeatureColumns:  []string{"a", "b", "noise"},
		FeatureSearch:   true,
		TestRatio:       0.3,
		NormKind:        norm.ZScore,
		Clean:           clean.Options{Missing: clean.FillNone},
	}
	runner := New(cfg, pickFirstEstimator{}, nil)

	summary, err := runner.Run([]Dataset{mk("ds1"), mk("ds2")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, summary.Features,
		"first perfect-scoring combination wins")
	assert.Equal(t, 1.0, summary.TestAccuracy)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestPredictionsAlignWithRows(t *testing.T) {
	datasets := []Dataset{dataset(t, "ds1", true), dataset(t, "ds2", true)}
	est := &stubEstimator{}
	runner := New(testConfig(), est, nil)

	summary, err := runner.Run(datasets)
	require.NoError(t, err)
	for _, res := range summary.Results {
		if res.Dataset != "ds2" {
			continue
		}
		require.NotNil(t, res.Predictions)
		pc, ok := res.Predictions.Col(PredColumn)
		require.True(t, ok)
		assert.Equal(t, res.Predictions.Len(), pc.Len())
		assert.Equal(t, res.Rows, res.Predictions.Len())
		assert.True(t, res.Labeled)
	}
}
