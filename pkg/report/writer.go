// Package report persists run artifacts: per-dataset tables, the run-level
// summary, and prediction-distribution plots.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"tabpipe/pkg/batch"
	"tabpipe/pkg/table"
)

// Writer persists artifacts under a single output directory.
type Writer struct {
	Dir    string
	Logger *zap.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{Dir: dir, Logger: logger}, nil
}

// WriteTable writes a table as CSV under the writer's directory.
func (w *Writer) WriteTable(name string, t *table.Table) error {
	path := filepath.Join(w.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	cols := t.Columns()
	row := make([]string, len(cols))
	for i := 0; i < t.Len(); i++ {
		for j, c := range cols {
			row[j] = c.String(i)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	w.Logger.Debug("wrote table", zap.String("path", path), zap.Int("rows", t.Len()))
	return nil
}

// summaryRecord is the JSON shape of one dataset outcome. Accuracy is a
// pointer so an unlabeled dataset is distinguishable from a legitimate
// accuracy of zero.
type summaryRecord struct {
	Dataset  string   `json:"dataset"`
	Status   string   `json:"status"`
	Rows     int      `json:"rows"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type summaryDoc struct {
	RunID           string          `json:"run_id"`
	Started         time.Time       `json:"started"`
	TrainingDataset string          `json:"training_dataset"`
	Features        []string        `json:"features"`
	TestAccuracy    float64         `json:"test_accuracy"`
	TestPrecision   float64         `json:"test_precision"`
	TestRecall      float64         `json:"test_recall"`
	TestF1          float64         `json:"test_f1"`
	Succeeded       int             `json:"succeeded"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Datasets        []summaryRecord `json:"datasets"`
}

// WriteSummary writes the run summary as summary.csv and summary.json.
func (w *Writer) WriteSummary(s *batch.Summary) error {
	doc := summaryDoc{
		RunID:           s.RunID,
		Started:         s.Started,
		TrainingDataset: s.TrainingDataset,
		Features:        s.Features,
		TestAccuracy:    s.TestAccuracy,
		TestPrecision:   s.TestPrecision,
		TestRecall:      s.TestRecall,
		TestF1:          s.TestF1,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		Skipped:         s.Skipped,
	}
	for _, res := range s.Results {
		rec := summaryRecord{
			Dataset: res.Dataset,
			Status:  string(res.Status),
			Rows:    res.Rows,
		}
		if res.Labeled {
			acc := res.Accuracy
			rec.Accuracy = &acc
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		doc.Datasets = append(doc.Datasets, rec)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.Dir, "summary.json"), data, 0o644); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(w.Dir, "summary.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"dataset", "status", "rows", "accuracy", "error"}); err != nil {
		return err
	}
	for _, rec := range doc.Datasets {
		acc := ""
		if rec.Accuracy != nil {
			acc = strconv.FormatFloat(*rec.Accuracy, 'f', 4, 64)
		}
		if err := cw.Write([]string{rec.Dataset, rec.Status, strconv.Itoa(rec.Rows), acc, rec.Error}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictionHist plots the prediction distribution as a histogram PNG.
func (w *Writer) WritePredictionHist(name string, preds []float64) error {
	if len(preds) == 0 {
		return fmt.Errorf("report: no predictions to plot")
	}
	p := plot.New()
	p.Title.Text = "Prediction distribution"
	p.X.Label.Text = "prediction"
	p.Y.Label.Text = "count"

	vals := make(plotter.Values, len(preds))
	copy(vals, preds)
	h, err := plotter.NewHist(vals, 16)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(5*vg.Inch, 4*vg.Inch, filepath.Join(w.Dir, name))
}
