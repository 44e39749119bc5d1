// Package norm scales numeric columns with statistics fitted once on a
// reference table and replayed on any number of later tables. Apply never
// recomputes statistics from its input; that is the guarantee that keeps
// train-time and apply-time scaling identical as distributions drift.
package norm

import (
	"fmt"
	"math"

	"tabpipe/pkg/stats"
	"tabpipe/pkg/table"
)

// StatKind selects the fitted statistic pair.
type StatKind string

const (
	// ZScore centers on the mean and divides by the population std.
	ZScore StatKind = "zscore"
	// MinMax maps the fitted [min, max] range onto [0, 1].
	MinMax StatKind = "minmax"
)

// Scales below this are treated as degenerate: the output is the centered
// value with no division, instead of blowing up to Inf/NaN.
const minScale = 1e-12

// ColumnStats holds the fitted location/scale pair for one column.
// ZScore: location=mean, scale=std. MinMax: location=min, scale=max-min.
type ColumnStats struct {
	Location float64 `json:"location"`
	Scale    float64 `json:"scale"`
}

// State is the immutable result of a fit. It is shared read-only across
// arbitrarily many Apply calls.
type State struct {
	Kind    StatKind               `json:"kind"`
	Columns map[string]ColumnStats `json:"columns"`
	// Excluded lists columns seen at fit time but deliberately left
	// unscaled (non-numeric, or outside the fitted column selection).
	Excluded []string `json:"excluded,omitempty"`
	// PreserveOriginals copies the first n scaled columns to
	// "<name>Orig" before scaling, for report readability.
	PreserveOriginals int `json:"preserve_originals,omitempty"`

	excluded map[string]struct{}
	order    []string
}

// SchemaMismatchError reports an input table incompatible with the fitted
// state.
type SchemaMismatchError struct {
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("normalize: column %q: %s", e.Column, e.Reason)
}

// Fit computes per-column statistics over the reference table. cols
// restricts fitting to the named columns; nil fits every numeric column.
// Non-numeric and unselected columns are recorded as excluded and pass
// through Apply untouched. NaN values are ignored when fitting.
func Fit(ref *table.Table, kind StatKind, cols []string) (*State, error) {
	if kind != ZScore && kind != MinMax {
		return nil, fmt.Errorf("normalize: unknown stat kind %q", kind)
	}
	selected := map[string]struct{}{}
	for _, name := range cols {
		if !ref.Has(name) {
			return nil, fmt.Errorf("normalize: fit column %q not found", name)
		}
		selected[name] = struct{}{}
	}

	st := &State{
		Kind:     kind,
		Columns:  make(map[string]ColumnStats),
		excluded: make(map[string]struct{}),
	}
	for _, c := range ref.Columns() {
		if c.Kind != table.Numeric || (cols != nil && !inSet(selected, c.Name)) {
			st.Excluded = append(st.Excluded, c.Name)
			st.excluded[c.Name] = struct{}{}
			continue
		}
		valid := stats.Valid(c.Floats)
		if len(valid) == 0 {
			return nil, fmt.Errorf("normalize: column %q has no values to fit", c.Name)
		}
		var cs ColumnStats
		switch kind {
		case ZScore:
			cs = ColumnStats{Location: stats.Mean(valid), Scale: stats.Std(valid)}
		case MinMax:
			lo, hi := stats.MinMax(valid)
			cs = ColumnStats{Location: lo, Scale: hi - lo}
		}
		st.Columns[c.Name] = cs
		st.order = append(st.order, c.Name)
	}
	return st, nil
}

// Apply transforms each fitted numeric column of t using the stored
// statistics. It fails with SchemaMismatchError when a fitted column is
// missing from the input, when a fitted column is no longer numeric, or
// when the input carries a numeric column the fit never saw. Non-numeric
// and excluded columns pass through unchanged. The input is not modified.
func (s *State) Apply(t *table.Table) (*table.Table, error) {
	for _, name := range s.fittedOrder() {
		c, ok := t.Col(name)
		if !ok {
			return nil, &SchemaMismatchError{Column: name, Reason: "fitted column missing from input"}
		}
		if c.Kind != table.Numeric {
			return nil, &SchemaMismatchError{Column: name, Reason: fmt.Sprintf("fitted as numeric, input is %s", c.Kind)}
		}
	}
	for _, c := range t.Columns() {
		if c.Kind != table.Numeric {
			continue
		}
		if _, fitted := s.Columns[c.Name]; fitted {
			continue
		}
		if s.isExcluded(c.Name) {
			continue
		}
		return nil, &SchemaMismatchError{Column: c.Name, Reason: "numeric column not seen at fit time"}
	}

	out := t.ShallowCopy()
	preserved := 0
	for _, c := range t.Columns() {
		cs, fitted := s.Columns[c.Name]
		if !fitted {
			continue
		}
		if preserved < s.PreserveOriginals {
			orig := c.Clone()
			orig.Name = c.Name + "Orig"
			if !out.Has(orig.Name) {
				_ = out.AddColumn(orig)
				preserved++
			}
		}
		scaled := make([]float64, len(c.Floats))
		for i, v := range c.Floats {
			if math.IsNaN(v) {
				scaled[i] = v
				continue
			}
			centered := v - cs.Location
			if math.Abs(cs.Scale) < minScale {
				scaled[i] = centered
				continue
			}
			scaled[i] = centered / cs.Scale
		}
		if err := replaceColumn(out, table.NumericCol(c.Name, scaled)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fittedOrder returns fitted column names in fit order when available,
// falling back to map order for deserialized states.
func (s *State) fittedOrder() []string {
	if len(s.order) == len(s.Columns) {
		return s.order
	}
	out := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		out = append(out, name)
	}
	return out
}

// isExcluded never mutates the state: fitted states are shared read-only
// across concurrent Apply calls.
func (s *State) isExcluded(name string) bool {
	if s.excluded != nil {
		_, ok := s.excluded[name]
		return ok
	}
	for _, n := range s.Excluded {
		if n == name {
			return true
		}
	}
	return false
}

func inSet(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

// replaceColumn swaps a column in place by name, keeping table order.
func replaceColumn(t *table.Table, c *table.Column) error {
	cols := t.Columns()
	for i, existing := range cols {
		if existing.Name == c.Name {
			cols[i] = c
			return nil
		}
	}
	return fmt.Errorf("normalize: column %q vanished during apply", c.Name)
}
