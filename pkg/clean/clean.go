// Package clean validates and repairs raw tables before feature
// engineering: type coercion, duplicate removal, missing-value strategies
// and outlier clipping.
package clean

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tabpipe/pkg/stats"
	"tabpipe/pkg/table"
)

// Strategy selects how missing numeric values are filled.
type Strategy string

const (
	FillMean    Strategy = "mean"
	FillMedian  Strategy = "median"
	FillZero    Strategy = "zero"
	FillForward Strategy = "ffill"
	FillNone    Strategy = "none"
)

// Options configures a cleaning pass. Zero values disable the
// corresponding step.
type Options struct {
	// DateColumns are coerced from categorical to time columns.
	DateColumns []string
	// NumericColumns are coerced from categorical to numeric columns.
	NumericColumns []string
	// Required columns must be present after coercion.
	Required []string
	// DuplicateKey identifies duplicate rows; empty means the full row.
	DuplicateKey []string
	// Missing selects the fill strategy for numeric nulls.
	Missing Strategy
	// MissingColumns restricts filling; nil means every numeric column.
	MissingColumns []string
	// ClipLower/ClipUpper are percentile bounds for outlier clipping.
	// Both zero disables clipping.
	ClipLower, ClipUpper float64
	// DropAllNull drops rows where every column is null.
	DropAllNull bool
	// TimeLayouts tried in order when coercing date columns.
	TimeLayouts []string
}

// DefaultTimeLayouts are tried when Options.TimeLayouts is empty.
var DefaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ValidationError reports required columns missing after coercion.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("clean: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Clean applies the configured steps in a fixed order: coercion, required
// column validation, duplicate removal, all-null row removal, missing-value
// fill, outlier clipping. The input table is not modified.
func Clean(t *table.Table, opts Options, logger *zap.Logger) (*table.Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := t.Clone()

	layouts := opts.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	for _, name := range opts.DateColumns {
		coerceDate(out, name, layouts)
	}
	for _, name := range opts.NumericColumns {
		coerceNumeric(out, name)
	}

	var missing []string
	for _, name := range opts.Required {
		if !out.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	out = dropDuplicates(out, opts.DuplicateKey)
	if opts.DropAllNull {
		out = dropAllNullRows(out)
	}

	if opts.Missing != "" && opts.Missing != FillNone {
		fillMissing(out, opts, logger)
	}
	if opts.ClipLower != 0 || opts.ClipUpper != 0 {
		clipOutliers(out, opts.ClipLower, opts.ClipUpper)
	}
	return out, nil
}

// coerceDate converts a categorical column to a time column in place,
// turning unparseable values into nulls.
func coerceDate(t *table.Table, name string, layouts []string) {
	c, ok := t.Col(name)
	if !ok || c.Kind != table.Categorical {
		return
	}
	times := make([]time.Time, c.Len())
	for i, s := range c.Strings {
		if s == "" {
			continue
		}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, s); err == nil {
				times[i] = ts
				break
			}
		}
	}
	c.Kind = table.Time
	c.Times = times
	c.Strings = nil
}

// coerceNumeric converts a categorical column to numeric in place, turning
// unparseable values into NaN.
func coerceNumeric(t *table.Table, name string) {
	c, ok := t.Col(name)
	if !ok || c.Kind != table.Categorical {
		return
	}
	vals := make([]float64, c.Len())
	for i, s := range c.Strings {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || isMissingToken(s) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v
	}
	c.Kind = table.Numeric
	c.Floats = vals
	c.Strings = nil
}

func isMissingToken(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}

// dropDuplicates keeps the first occurrence of each key fingerprint.
func dropDuplicates(t *table.Table, key []string) *table.Table {
	cols := t.Columns()
	if len(key) > 0 {
		cols = cols[:0:0]
		for _, name := range key {
			if c, ok := t.Col(name); ok {
				cols = append(cols, c)
			}
		}
	}
	seen := make(map[string]struct{}, t.Len())
	var keep []int
	for i := 0; i < t.Len(); i++ {
		var sb strings.Builder
		for _, c := range cols {
			sb.WriteString(c.String(i))
			sb.WriteByte(0x1f)
		}
		fp := sb.String()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == t.Len() {
		return t
	}
	return t.Select(keep)
}

func dropAllNullRows(t *table.Table) *table.Table {
	var keep []int
	for i := 0; i < t.Len(); i++ {
		allNull := true
		for _, c := range t.Columns() {
			if !c.IsNull(i) {
				allNull = false
				break
			}
		}
		if !allNull {
			keep = append(keep, i)
		}
	}
	if len(keep) == t.Len() {
		return t
	}
	return t.Select(keep)
}

// fillMissing replaces NaN values in numeric columns per the strategy.
func fillMissing(t *table.Table, opts Options, logger *zap.Logger) {
	targets := opts.MissingColumns
	if targets == nil {
		for _, c := range t.Columns() {
			if c.Kind == table.Numeric {
				targets = append(targets, c.Name)
			}
		}
	}
	for _, name := range targets {
		c, ok := t.Col(name)
		if !ok || c.Kind != table.Numeric {
			continue
		}
		filled := 0
		switch opts.Missing {
		case FillForward:
			last := math.NaN()
			for i, v := range c.Floats {
				if math.IsNaN(v) {
					if !math.IsNaN(last) {
						c.Floats[i] = last
						filled++
					}
					continue
				}
				last = v
			}
		default:
			valid := stats.Valid(c.Floats)
			var fill float64
			switch opts.Missing {
			case FillMean:
				fill = stats.Mean(valid)
			case FillMedian:
				fill = stats.Median(valid)
			case FillZero:
				fill = 0
			}
			if math.IsNaN(fill) {
				continue
			}
			for i, v := range c.Floats {
				if math.IsNaN(v) {
					c.Floats[i] = fill
					filled++
				}
			}
		}
		if filled > 0 {
			logger.Debug("filled missing values",
				zap.String("column", name),
				zap.String("strategy", string(opts.Missing)),
				zap.Int("filled", filled))
		}
	}
}

// clipOutliers clips every numeric column to the given percentile bounds.
func clipOutliers(t *table.Table, lower, upper float64) {
	for _, c := range t.Columns() {
		if c.Kind != table.Numeric {
			continue
		}
		valid := stats.Valid(c.Floats)
		if len(valid) == 0 {
			continue
		}
		lo := stats.Percentile(valid, lower)
		hi := stats.Percentile(valid, upper)
		for i, v := range c.Floats {
			if math.IsNaN(v) {
				continue
			}
			if v < lo {
				c.Floats[i] = lo
			} else if v > hi {
				c.Floats[i] = hi
			}
		}
	}
}
