// Package config loads the pipeline configuration from a YAML file with
// TABPIPE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"tabpipe/pkg/batch"
	"tabpipe/pkg/clean"
	"tabpipe/pkg/feature"
	"tabpipe/pkg/norm"
)

// FeatureSpec is the on-disk form of one feature declaration.
type FeatureSpec struct {
	Name           string `mapstructure:"name"`
	Kind           string `mapstructure:"kind"`
	Source         string `mapstructure:"source"`
	Offset         int    `mapstructure:"offset"`
	Window         int    `mapstructure:"window"`
	MinPeriods     int    `mapstructure:"min_periods"`
	Agg            string `mapstructure:"agg"`
	ExcludeCurrent bool   `mapstructure:"exclude_current"`
	Field          string `mapstructure:"field"`
}

// Config is the full recognized option surface.
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	OutputDir string `mapstructure:"output_dir"`

	CleanedSuffix  string `mapstructure:"cleaned_suffix"`
	FeaturesSuffix string `mapstructure:"features_suffix"`
	PredSuffix     string `mapstructure:"pred_suffix"`

	TrainingDataset string   `mapstructure:"training_dataset"`
	LabelColumn     string   `mapstructure:"label_column"`
	TimeKey         string   `mapstructure:"time_key"`
	GroupKeys       []string `mapstructure:"group_keys"`

	Features        []FeatureSpec `mapstructure:"features"`
	FeatureColumns  []string      `mapstructure:"feature_columns"`
	FeaturePrefixes []string      `mapstructure:"feature_prefixes"`
	LagSuffix       string        `mapstructure:"lag_suffix"`
	ExcludeColumns  []string      `mapstructure:"exclude_columns"`

	NormKind          string   `mapstructure:"norm_kind"`
	NormColumns       []string `mapstructure:"norm_columns"`
	PreserveOriginals int      `mapstructure:"preserve_originals"`

	DateColumns     []string `mapstructure:"date_columns"`
	NumericColumns  []string `mapstructure:"numeric_columns"`
	RequiredColumns []string `mapstructure:"required_columns"`
	DuplicateKey    []string `mapstructure:"duplicate_key"`
	MissingStrategy string   `mapstructure:"missing_strategy"`
	ClipLower       float64  `mapstructure:"clip_lower"`
	ClipUpper       float64  `mapstructure:"clip_upper"`

	TestRatio     float64 `mapstructure:"test_ratio"`
	FeatureSearch bool    `mapstructure:"feature_search"`
	Workers       int     `mapstructure:"workers"`

	Epochs       int     `mapstructure:"epochs"`
	LearningRate float64 `mapstructure:"learning_rate"`
	BatchSize    int     `mapstructure:"batch_size"`
}

// Load reads the config file at path, or tabpipe.yaml in the working
// directory when path is empty. Environment variables prefixed TABPIPE_
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("data_dir", "data")
	v.SetDefault("output_dir", "reports")
	v.SetDefault("cleaned_suffix", "Cleaned.csv")
	v.SetDefault("features_suffix", "Features.csv")
	v.SetDefault("pred_suffix", "Pred.csv")
	v.SetDefault("norm_kind", string(norm.ZScore))
	v.SetDefault("missing_strategy", string(clean.FillMedian))
	v.SetDefault("test_ratio", 0.2)
	v.SetDefault("workers", 1)
	v.SetDefault("epochs", 200)
	v.SetDefault("learning_rate", 0.05)
	v.SetDefault("batch_size", 32)

	v.SetEnvPrefix("TABPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	} else {
		v.SetConfigName("tabpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// BatchConfig converts the loaded options into a runner configuration.
func (c *Config) BatchConfig() (batch.Config, error) {
	specs := make([]feature.Spec, 0, len(c.Features))
	for _, fs := range c.Features {
		kind, err := parseKind(fs.Kind)
		if err != nil {
			return batch.Config{}, fmt.Errorf("config: feature %q: %w", fs.Name, err)
		}
		spec := feature.Spec{
			Name:           fs.Name,
			Kind:           kind,
			Source:         fs.Source,
			Offset:         fs.Offset,
			Window:         fs.Window,
			MinPeriods:     fs.MinPeriods,
			Agg:            feature.Agg(fs.Agg),
			ExcludeCurrent: fs.ExcludeCurrent,
			Field:          feature.TimeField(fs.Field),
		}
		if err := spec.Validate(); err != nil {
			return batch.Config{}, fmt.Errorf("config: %w", err)
		}
		specs = append(specs, spec)
	}

	kind := norm.StatKind(c.NormKind)
	if kind != norm.ZScore && kind != norm.MinMax {
		return batch.Config{}, fmt.Errorf("config: unknown norm_kind %q", c.NormKind)
	}

	return batch.Config{
		TrainingDataset:   c.TrainingDataset,
		Keys:              feature.Keys{TimeKey: c.TimeKey, GroupKeys: c.GroupKeys},
		Specs:             specs,
		LabelColumn:       c.LabelColumn,
		FeatureColumns:    c.FeatureColumns,
		FeaturePrefixes:   c.FeaturePrefixes,
		LagSuffix:         c.LagSuffix,
		ExcludeColumns:    c.ExcludeColumns,
		NormKind:          kind,
		NormColumns:       c.NormColumns,
		PreserveOriginals: c.PreserveOriginals,
		TestRatio:         c.TestRatio,
		FeatureSearch:     c.FeatureSearch,
		Workers:           c.Workers,
		Clean: clean.Options{
			DateColumns:    c.DateColumns,
			NumericColumns: c.NumericColumns,
			Required:       c.RequiredColumns,
			DuplicateKey:   c.DuplicateKey,
			Missing:        clean.Strategy(c.MissingStrategy),
			ClipLower:      c.ClipLower,
			ClipUpper:      c.ClipUpper,
			DropAllNull:    true,
		},
	}, nil
}

func parseKind(s string) (feature.Kind, error) {
	switch strings.ToLower(s) {
	case "lag":
		return feature.Lag, nil
	case "rolling":
		return feature.Rolling, nil
	case "groupagg", "group_agg":
		return feature.GroupAgg, nil
	case "timederived", "time_derived":
		return feature.TimeDerived, nil
	}
	return 0, fmt.Errorf("unknown feature kind %q", s)
}
