package feature

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"tabpipe/pkg/stats"
	"tabpipe/pkg/table"
)

// Build appends one engineered column per spec, in spec order. Existing
// columns are never mutated; later specs may reference columns produced by
// earlier ones. Given the same table and specs the output is bit-identical.
func Build(t *table.Table, keys Keys, specs []Spec) (*table.Table, error) {
	out := t.ShallowCopy()
	parts, err := partition(out, keys)
	if err != nil {
		return nil, err
	}

	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if out.Has(s.Name) {
			return nil, &SpecError{Spec: s.Name, Reason: "output column already exists"}
		}

		var vals []float64
		switch s.Kind {
		case Lag:
			vals, err = buildLag(out, parts, s)
		case Rolling:
			vals, err = buildRolling(out, parts, s)
		case GroupAgg:
			vals, err = buildGroupAgg(out, parts, s)
		case TimeDerived:
			vals, err = buildTimeDerived(out, keys, s)
		}
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(table.NumericCol(s.Name, vals)); err != nil {
			return nil, &SpecError{Spec: s.Name, Reason: err.Error()}
		}
	}
	return out, nil
}

// partitions holds row indices bucketed by group key. Within each bucket
// rows are ordered by the time key when one is configured; ties keep their
// original order. Bucket order follows first appearance in the table, so
// builds are deterministic.
type partitions struct {
	groups  [][]int
	ordered bool
}

func partition(t *table.Table, keys Keys) (*partitions, error) {
	groupCols := make([]*table.Column, 0, len(keys.GroupKeys))
	for _, name := range keys.GroupKeys {
		c, ok := t.Col(name)
		if !ok {
			return nil, &GroupKeyError{Column: name, Reason: "column not found"}
		}
		groupCols = append(groupCols, c)
	}

	var timeCol *table.Column
	if keys.TimeKey != "" {
		c, ok := t.Col(keys.TimeKey)
		if !ok {
			return nil, &GroupKeyError{Column: keys.TimeKey, Reason: "time key not found"}
		}
		if c.Kind == table.Categorical {
			return nil, &GroupKeyError{Column: keys.TimeKey, Reason: "time key must be a time or numeric column"}
		}
		timeCol = c
	}

	p := &partitions{ordered: timeCol != nil}
	bucket := make(map[string]int)
	for i := 0; i < t.Len(); i++ {
		var sb strings.Builder
		for _, c := range groupCols {
			sb.WriteString(c.String(i))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		gi, ok := bucket[key]
		if !ok {
			gi = len(p.groups)
			bucket[key] = gi
			p.groups = append(p.groups, nil)
		}
		p.groups[gi] = append(p.groups[gi], i)
	}

	if timeCol != nil {
		for _, rows := range p.groups {
			sort.SliceStable(rows, func(a, b int) bool {
				va, _ := timeCol.OrderValue(rows[a])
				vb, _ := timeCol.OrderValue(rows[b])
				return va < vb
			})
		}
	}
	return p, nil
}

func numericSource(t *table.Table, s Spec) ([]float64, error) {
	c, ok := t.Col(s.Source)
	if !ok {
		return nil, &SpecError{Spec: s.Name, Reason: fmt.Sprintf("source column %q not found", s.Source)}
	}
	if c.Kind != table.Numeric {
		return nil, &SpecError{Spec: s.Name, Reason: fmt.Sprintf("source column %q is %s, want numeric", s.Source, c.Kind)}
	}
	return c.Floats, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func buildLag(t *table.Table, p *partitions, s Spec) ([]float64, error) {
	src, err := numericSource(t, s)
	if err != nil {
		return nil, err
	}
	if !p.ordered {
		return nil, &GroupKeyError{Column: "", Reason: "lag features require a time key"}
	}
	out := nanSlice(t.Len())
	for _, rows := range p.groups {
		for pos, i := range rows {
			if pos >= s.Offset {
				out[i] = src[rows[pos-s.Offset]]
			}
		}
	}
	return out, nil
}

func buildRolling(t *table.Table, p *partitions, s Spec) ([]float64, error) {
	src, err := numericSource(t, s)
	if err != nil {
		return nil, err
	}
	if !p.ordered {
		return nil, &GroupKeyError{Column: "", Reason: "rolling features require a time key"}
	}
	minPeriods := s.MinPeriods
	if minPeriods == 0 {
		minPeriods = s.Window
	}
	out := nanSlice(t.Len())
	window := make([]float64, 0, s.Window)
	for _, rows := range p.groups {
		for pos, i := range rows {
			// Trailing window ending at pos, optionally excluding
			// the current row. NaN source values are skipped and do
			// not count toward the minimum.
			end := pos + 1
			if s.ExcludeCurrent {
				end = pos
			}
			start := end - s.Window
			if start < 0 {
				start = 0
			}
			window = window[:0]
			for _, j := range rows[start:end] {
				if v := src[j]; !math.IsNaN(v) {
					window = append(window, v)
				}
			}
			if len(window) < minPeriods && s.Agg != AggCount {
				continue
			}
			out[i] = aggregate(s.Agg, window)
		}
	}
	return out, nil
}

func buildGroupAgg(t *table.Table, p *partitions, s Spec) ([]float64, error) {
	src, err := numericSource(t, s)
	if err != nil {
		return nil, err
	}
	out := nanSlice(t.Len())
	for _, rows := range p.groups {
		vals := make([]float64, 0, len(rows))
		for _, i := range rows {
			if v := src[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		agg := aggregate(s.Agg, vals)
		for _, i := range rows {
			out[i] = agg
		}
	}
	return out, nil
}

func buildTimeDerived(t *table.Table, keys Keys, s Spec) ([]float64, error) {
	if keys.TimeKey == "" {
		return nil, &GroupKeyError{Column: "", Reason: "time-derived features require a time key"}
	}
	c, ok := t.Col(keys.TimeKey)
	if !ok {
		return nil, &GroupKeyError{Column: keys.TimeKey, Reason: "time key not found"}
	}
	if c.Kind != table.Time {
		return nil, &SpecError{Spec: s.Name, Reason: fmt.Sprintf("time field %q requires a time-typed key, got %s", s.Field, c.Kind)}
	}
	out := nanSlice(t.Len())
	for i, ts := range c.Times {
		if ts.IsZero() {
			continue
		}
		switch s.Field {
		case FieldYear:
			out[i] = float64(ts.Year())
		case FieldMonth:
			out[i] = float64(ts.Month())
		case FieldDay:
			out[i] = float64(ts.Day())
		case FieldHour:
			out[i] = float64(ts.Hour())
		case FieldWeekday:
			out[i] = float64(ts.Weekday())
		case FieldISOWeek:
			_, wk := ts.ISOWeek()
			out[i] = float64(wk)
		case FieldISOYear:
			y, _ := ts.ISOWeek()
			out[i] = float64(y)
		case FieldYearDaySin:
			out[i] = math.Sin(2 * math.Pi * float64(ts.YearDay()-1) / 365.2425)
		case FieldYearDayCos:
			out[i] = math.Cos(2 * math.Pi * float64(ts.YearDay()-1) / 365.2425)
		}
	}
	return out, nil
}

func aggregate(a Agg, vals []float64) float64 {
	if a == AggCount {
		return float64(len(vals))
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	switch a {
	case AggMean:
		return stats.Mean(vals)
	case AggSum:
		return stats.Sum(vals)
	case AggMin:
		return stats.Min(vals)
	case AggMax:
		return stats.Max(vals)
	case AggStd:
		return stats.Std(vals)
	}
	return math.NaN()
}
