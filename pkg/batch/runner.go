package batch

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabpipe/pkg/clean"
	"tabpipe/pkg/feature"
	"tabpipe/pkg/model"
	"tabpipe/pkg/norm"
	"tabpipe/pkg/split"
	"tabpipe/pkg/table"
)

// PredColumn is the name of the appended prediction column.
const PredColumn = "Pred"

// Config is the recognized configuration surface of a run.
type Config struct {
	// TrainingDataset identifies the dataset the normalizer and
	// estimator are fitted on. Required.
	TrainingDataset string
	// Keys designate the time and group columns for feature building.
	Keys feature.Keys
	// Specs are applied in order by the feature builder.
	Specs []feature.Spec
	// LabelColumn is the training target.
	LabelColumn string
	// FeatureColumns overrides model input selection. When empty,
	// columns are discovered by prefix/suffix patterns if configured,
	// else the spec output names are used.
	FeatureColumns []string
	// FeaturePrefixes/LagSuffix drive pattern-based discovery.
	FeaturePrefixes []string
	LagSuffix       string
	// ExcludeColumns are never selected as model inputs.
	ExcludeColumns []string
	// FeatureSearch evaluates bounded combinations of the candidate
	// feature columns on the held-out split and keeps the best-scoring
	// subset for the whole run. Requires TestRatio > 0.
	FeatureSearch bool
	// NormKind picks the normalizer statistic; NormColumns restricts the
	// fitted columns (empty means the model feature columns).
	NormKind    norm.StatKind
	NormColumns []string
	// PreserveOriginals copies the first n columns before scaling.
	PreserveOriginals int
	// TestRatio cuts the tail of the training dataset into a held-out
	// test split.
	TestRatio float64
	// Workers bounds the per-dataset fan-out; <= 1 runs sequentially.
	Workers int
	// Clean configures the cleaning pass applied to every dataset.
	Clean clean.Options
}

// fitted is the read-only shared state produced by the one-time fit/train
// step. It must not be mutated once Run starts processing datasets.
type fitted struct {
	norm     *norm.State
	model    model.State
	features []string
}

// Runner drives the pipeline.
type Runner struct {
	cfg    Config
	est    model.Estimator
	logger *zap.Logger
}

// New builds a runner. A nil logger disables logging.
func New(cfg Config, est model.Estimator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, est: est, logger: logger}
}

// Run processes every dataset. The training dataset is cleaned, featured,
// split and used to fit the normalizer and train the estimator exactly
// once; errors there abort the run before any other dataset is touched.
// Every other dataset goes through apply/predict only, with failures
// recorded per dataset.
func (r *Runner) Run(datasets []Dataset) (*Summary, error) {
	summary := &Summary{
		RunID:           uuid.NewString(),
		Started:         time.Now(),
		TrainingDataset: r.cfg.TrainingDataset,
	}

	trainIdx := -1
	for i, ds := range datasets {
		if ds.ID == r.cfg.TrainingDataset {
			trainIdx = i
			break
		}
	}
	if trainIdx < 0 {
		return nil, fmt.Errorf("batch: training dataset %q not in batch", r.cfg.TrainingDataset)
	}

	fit, trainResult, err := r.fit(datasets[trainIdx], summary)
	if err != nil {
		// No safe state to fall back to: a bad fit would silently
		// skew every downstream prediction.
		return nil, fmt.Errorf("batch: fit/train on %q: %w", r.cfg.TrainingDataset, err)
	}
	summary.Features = fit.features

	results := make([]Result, len(datasets))
	results[trainIdx] = trainResult

	var rest []int
	for i := range datasets {
		if i != trainIdx {
			rest = append(rest, i)
		}
	}

	if r.cfg.Workers > 1 {
		// fit is read-only from here on; each result goes to its own
		// slot, so the only synchronization needed is the final wait.
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < r.cfg.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					results[idx] = r.process(datasets[idx], fit)
				}
			}()
		}
		for _, idx := range rest {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
	} else {
		for _, idx := range rest {
			results[idx] = r.process(datasets[idx], fit)
		}
	}

	summary.Results = results
	for _, res := range results {
		switch res.Status {
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Succeeded++
		}
	}
	r.logger.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// fit runs the one-time pipeline on the training dataset: clean, feature,
// time-ordered split, normalizer fit, estimator train, held-out
// evaluation. Any error here is fatal to the run.
func (r *Runner) fit(ds Dataset, summary *Summary) (*fitted, Result, error) {
	started := time.Now()
	ct, err := clean.Clean(ds.Table, r.cfg.Clean, r.logger)
	if err != nil {
		return nil, Result{}, err
	}
	ft, err := feature.Build(ct, r.cfg.Keys, r.cfg.Specs)
	if err != nil {
		return nil, Result{}, err
	}

	trainTab := ft
	var testTab *table.Table
	if r.cfg.TestRatio > 0 {
		trainTab, testTab, err = split.TimeOrdered(ft, r.cfg.Keys.TimeKey, r.cfg.TestRatio)
		if err != nil {
			return nil, Result{}, err
		}
	}

	features := r.selectFeatures(trainTab)
	if len(features) == 0 {
		return nil, Result{}, fmt.Errorf("no feature columns selected")
	}

	normCols := r.cfg.NormColumns
	if len(normCols) == 0 {
		normCols = features
	}
	st, err := norm.Fit(trainTab, r.cfg.NormKind, normCols)
	if err != nil {
		return nil, Result{}, err
	}
	st.PreserveOriginals = r.cfg.PreserveOriginals

	trainNorm, err := st.Apply(trainTab)
	if err != nil {
		return nil, Result{}, err
	}
	var testNorm *table.Table
	if testTab != nil && testTab.Len() > 0 {
		testNorm, err = st.Apply(testTab)
		if err != nil {
			return nil, Result{}, err
		}
	}
	if r.cfg.FeatureSearch && testNorm != nil && len(features) >= minSearchSize {
		features = r.searchFeatures(trainNorm, testNorm, features)
	}
	// Lag and partial-window features leave NaN rows at the start of
	// each partition; those rows cannot be trained on.
	trainNorm = completeRows(trainNorm, features)
	X, err := trainNorm.Matrix(features)
	if err != nil {
		return nil, Result{}, err
	}
	y, err := labelVector(trainNorm, r.cfg.LabelColumn)
	if err != nil {
		return nil, Result{}, err
	}
	ms, err := r.est.Train(X, y)
	if err != nil {
		return nil, Result{}, err
	}
	r.logger.Info("fit complete",
		zap.String("dataset", ds.ID),
		zap.Int("train_rows", trainNorm.Len()),
		zap.Strings("features", features))

	fit := &fitted{norm: st, model: ms, features: features}
	result := Result{Dataset: ds.ID, Status: StatusDone, Cleaned: ct, Featured: ft, Rows: trainNorm.Len()}

	if testNorm != nil {
		testNorm = completeRows(testNorm, features)
		testX, err := testNorm.Matrix(features)
		if err != nil {
			return nil, Result{}, err
		}
		preds, err := r.est.Predict(ms, testX)
		if err != nil {
			return nil, Result{}, err
		}
		if yTest, err := labelVector(testNorm, r.cfg.LabelColumn); err == nil {
			summary.TestAccuracy = model.Accuracy(yTest, preds)
			summary.TestPrecision, summary.TestRecall, summary.TestF1 = model.PrecisionRecallF1(yTest, preds)
			result.Accuracy = summary.TestAccuracy
			result.Labeled = true
		}
		withPred := testNorm.ShallowCopy()
		if err := withPred.AddColumn(table.NumericCol(PredColumn, preds)); err != nil {
			return nil, Result{}, err
		}
		result.Predictions = withPred
		result.Rows = withPred.Len()
	}
	result.Elapsed = time.Since(started)
	return fit, result, nil
}

// process runs the apply/predict path for one non-training dataset. Every
// failure is wrapped as a DatasetError and recorded; the batch continues.
func (r *Runner) process(ds Dataset, fit *fitted) Result {
	started := time.Now()
	var ct, ft *table.Table
	fail := func(step Status, err error) Result {
		wrapped := &DatasetError{Dataset: ds.ID, Step: step, Err: err}
		r.logger.Warn("dataset failed",
			zap.String("dataset", ds.ID),
			zap.String("step", string(step)),
			zap.Error(err))
		return Result{Dataset: ds.ID, Status: StatusFailed, Cleaned: ct, Featured: ft, Err: wrapped, Elapsed: time.Since(started)}
	}

	ct, err := clean.Clean(ds.Table, r.cfg.Clean, r.logger)
	if err != nil {
		return fail(StatusCleaned, err)
	}
	ft, err = feature.Build(ct, r.cfg.Keys, r.cfg.Specs)
	if err != nil {
		return fail(StatusFeatured, err)
	}
	nt, err := fit.norm.Apply(ft)
	if err != nil {
		return fail(StatusNormalized, err)
	}
	X, err := nt.Matrix(fit.features)
	if err != nil {
		return fail(StatusPredicted, err)
	}

	// Rows whose lag/rolling features are still NaN (partition warmup)
	// cannot be scored; they keep a null prediction so the output stays
	// aligned 1:1 with the input rows.
	scorable := completeRowIndices(nt, fit.features)
	compact := make([][]float64, len(scorable))
	for k, i := range scorable {
		compact[k] = X[i]
	}
	preds := nanVector(nt.Len())
	if len(compact) > 0 {
		scored, err := r.est.Predict(fit.model, compact)
		if err != nil {
			return fail(StatusPredicted, err)
		}
		for k, i := range scorable {
			preds[i] = scored[k]
		}
	}

	out := nt.ShallowCopy()
	if err := out.AddColumn(table.NumericCol(PredColumn, preds)); err != nil {
		return fail(StatusPredicted, err)
	}
	res := Result{Dataset: ds.ID, Status: StatusDone, Cleaned: ct, Featured: ft, Predictions: out, Rows: out.Len(), Elapsed: time.Since(started)}
	if y, err := labelVector(nt, r.cfg.LabelColumn); err == nil {
		yScored := make([]float64, len(scorable))
		pScored := make([]float64, len(scorable))
		for k, i := range scorable {
			yScored[k] = y[i]
			pScored[k] = preds[i]
		}
		res.Accuracy = model.Accuracy(yScored, pScored)
		res.Labeled = true
	}
	r.logger.Info("dataset done",
		zap.String("dataset", ds.ID),
		zap.Int("rows", res.Rows))
	return res
}

// completeRowIndices returns the rows holding no NaN in any of the given
// numeric columns.
func completeRowIndices(t *table.Table, cols []string) []int {
	var keep []int
	for i := 0; i < t.Len(); i++ {
		ok := true
		for _, name := range cols {
			c, found := t.Col(name)
			if !found || c.Kind != table.Numeric {
				continue
			}
			if math.IsNaN(c.Floats[i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return keep
}

// completeRows drops rows holding NaN in any of the given numeric
// columns.
func completeRows(t *table.Table, cols []string) *table.Table {
	keep := completeRowIndices(t, cols)
	if len(keep) == t.Len() {
		return t
	}
	return t.Select(keep)
}

func nanVector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// labelVector extracts the label column as 0/1 floats, label-encoding
// categorical targets.
func labelVector(t *table.Table, labelCol string) ([]float64, error) {
	if labelCol == "" {
		return nil, fmt.Errorf("no label column configured")
	}
	c, ok := t.Col(labelCol)
	if !ok {
		return nil, fmt.Errorf("label column %q not found", labelCol)
	}
	switch c.Kind {
	case table.Numeric:
		for _, v := range c.Floats {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("label column %q has missing values", labelCol)
			}
		}
		return append([]float64(nil), c.Floats...), nil
	case table.Categorical:
		y, _ := model.EncodeTarget(c.Strings)
		return y, nil
	}
	return nil, fmt.Errorf("label column %q is %s, want numeric or categorical", labelCol, c.Kind)
}
