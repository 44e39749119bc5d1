// Package batch runs the full pipeline (clean, feature, normalize,
// predict) over a named collection of datasets, fitting the normalizer
// and estimator exactly once on a designated training dataset and applying
// them to every other dataset. One dataset's failure never aborts the
// batch; only the one-time fit/train step is fatal.
package batch

import (
	"fmt"
	"time"

	"tabpipe/pkg/table"
)

// Status tracks a dataset through the per-dataset state machine:
// pending -> cleaned -> featured -> normalized -> predicted -> done,
// or pending -> failed at any step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCleaned    Status = "cleaned"
	StatusFeatured   Status = "featured"
	StatusNormalized Status = "normalized"
	StatusPredicted  Status = "predicted"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// DatasetError wraps a step failure attributable to one dataset in a
// batch. It is recorded in the dataset's result and never propagates out
// of Run.
type DatasetError struct {
	Dataset string
	Step    Status
	Err     error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset %q: step %s: %v", e.Dataset, e.Step, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }

// Dataset is one named input table.
type Dataset struct {
	ID    string
	Table *table.Table
}

// Result is the per-dataset outcome. Cleaned and Featured carry the
// intermediate tables for the report writer; they are nil past the step
// that failed.
type Result struct {
	Dataset     string
	Status      Status
	Cleaned     *table.Table
	Featured    *table.Table
	Predictions *table.Table
	Err         error
	Rows        int
	// Accuracy is set when the dataset carried the label column.
	Accuracy float64
	Labeled  bool
	Elapsed  time.Duration
}

// Summary is the run-level report: every dataset with its outcome, plus
// the training dataset's held-out test metrics.
type Summary struct {
	RunID           string
	Started         time.Time
	TrainingDataset string
	Features        []string
	TestAccuracy    float64
	TestPrecision   float64
	TestRecall      float64
	TestF1          float64
	Succeeded       int
	Failed          int
	Skipped         int
	Results         []Result
}
