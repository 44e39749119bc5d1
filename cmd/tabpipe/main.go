package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"tabpipe/pkg/batch"
	"tabpipe/pkg/config"
	"tabpipe/pkg/ingest"
	"tabpipe/pkg/model"
	"tabpipe/pkg/report"
	"tabpipe/pkg/table"
)

//
// ---------------------- CLI FLAGS ----------------------
//
// --config  : Path to YAML config file. Default: tabpipe.yaml in cwd.
// --data    : Override data directory (one CSV per dataset).
// --out     : Override output directory for reports.
// --train   : Override the training dataset id.
// --plots   : Also write prediction histograms per dataset.
// --verbose : Development logging.
//
// Example:
//   tabpipe --config pipeline.yaml --data ./data --out ./reports --plots
//
// -------------------------------------------------------
//

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	dataDir := flag.String("data", "", "Override data directory")
	outDir := flag.String("out", "", "Override output directory")
	trainID := flag.String("train", "", "Override training dataset id")
	plots := flag.Bool("plots", false, "Write prediction histograms")
	verbose := flag.Bool("verbose", false, "Development logging")
	flag.Parse()

	logger, err := buildLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *dataDir, *outDir, *trainID, *plots, logger); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath, dataDir, outDir, trainID string, plots bool, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if outDir != "" {
		cfg.OutputDir = outDir
	}
	if trainID != "" {
		cfg.TrainingDataset = trainID
	}

	runCfg, err := cfg.BatchConfig()
	if err != nil {
		return err
	}

	datasets, err := loadDatasets(cfg.DataDir, logger)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		return fmt.Errorf("no CSV datasets found in %s", cfg.DataDir)
	}

	est := model.NewLogisticRegression(cfg.LearningRate, cfg.Epochs, cfg.BatchSize)
	runner := batch.New(runCfg, est, logger)
	summary, err := runner.Run(datasets)
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(cfg.OutputDir, logger)
	if err != nil {
		return err
	}
	for _, res := range summary.Results {
		if res.Cleaned != nil {
			if err := writer.WriteTable(res.Dataset+cfg.CleanedSuffix, res.Cleaned); err != nil {
				return err
			}
		}
		if res.Featured != nil {
			if err := writer.WriteTable(res.Dataset+cfg.FeaturesSuffix, res.Featured); err != nil {
				return err
			}
		}
		if res.Predictions != nil {
			if err := writer.WriteTable(res.Dataset+cfg.PredSuffix, res.Predictions); err != nil {
				return err
			}
			if plots {
				if err := writer.WritePredictionHist(res.Dataset+"PredHist.png", predColumn(res.Predictions)); err != nil {
					logger.Warn("histogram failed", zap.String("dataset", res.Dataset), zap.Error(err))
				}
			}
		}
	}
	if err := writer.WriteSummary(summary); err != nil {
		return err
	}

	logger.Info("artifacts written",
		zap.String("dir", cfg.OutputDir),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return nil
}

// loadDatasets reads every *.csv in dir as one dataset named after the
// file base name.
func loadDatasets(dir string, logger *zap.Logger) ([]batch.Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []batch.Dataset
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := ingest.ReadCSV(path, ingest.Options{SkipMalformed: true})
		if err != nil {
			// A malformed file becomes a skipped dataset, not a
			// fatal error; the summary will show it.
			logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".csv")
		out = append(out, batch.Dataset{ID: id, Table: t})
		logger.Info("loaded dataset", zap.String("dataset", id), zap.Int("rows", t.Len()))
	}
	return out, nil
}

func predColumn(t *table.Table) []float64 {
	if c, ok := t.Col(batch.PredColumn); ok && c.Kind == table.Numeric {
		return c.Floats
	}
	return nil
}
