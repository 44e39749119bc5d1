// Package feature derives engineered columns (lag, rolling-window,
// groupby-aggregate, time-key) from a validated table. Lag and rolling
// features are causally bounded: the value at a row only reads rows at or
// before it in time-key order within the same group partition.
package feature

import "fmt"

// Kind is the closed set of feature variants.
type Kind int

const (
	// Lag reads the source value Offset rows earlier in the partition.
	Lag Kind = iota
	// Rolling aggregates a trailing window of Window rows.
	Rolling
	// GroupAgg broadcasts a whole-partition aggregate to every row.
	// It is a static summary, not causally bounded: it sees rows after
	// the current one. Do not use it for causally-sensitive features.
	GroupAgg
	// TimeDerived is a pure function of the time key value.
	TimeDerived
)

func (k Kind) String() string {
	switch k {
	case Lag:
		return "lag"
	case Rolling:
		return "rolling"
	case GroupAgg:
		return "groupagg"
	case TimeDerived:
		return "timederived"
	}
	return "unknown"
}

// Agg names a window or partition aggregation.
type Agg string

const (
	AggMean  Agg = "mean"
	AggSum   Agg = "sum"
	AggMin   Agg = "min"
	AggMax   Agg = "max"
	AggStd   Agg = "std"
	AggCount Agg = "count"
)

// TimeField names a calendar value derived from the time key.
type TimeField string

const (
	FieldYear    TimeField = "year"
	FieldMonth   TimeField = "month"
	FieldDay     TimeField = "day"
	FieldHour    TimeField = "hour"
	FieldWeekday TimeField = "weekday"
	FieldISOWeek TimeField = "isoweek"
	FieldISOYear TimeField = "isoyear"
	// Cyclical encodings of the day-of-year, for models that need
	// calendar continuity across the year boundary.
	FieldYearDaySin TimeField = "yearday_sin"
	FieldYearDayCos TimeField = "yearday_cos"
)

// Spec declares one derived column. Specs are immutable values; Validate
// checks them before any data is touched.
type Spec struct {
	// Name of the output column.
	Name string
	// Kind selects the variant.
	Kind Kind
	// Source column read by Lag, Rolling and GroupAgg.
	Source string
	// Offset is the lag distance in rows. Zero reproduces the source.
	Offset int
	// Window is the trailing window size in rows.
	Window int
	// MinPeriods allows partial windows once this many observations are
	// available. Zero means a full window is required.
	MinPeriods int
	// Agg applies to Rolling and GroupAgg.
	Agg Agg
	// ExcludeCurrent drops the current row from rolling windows.
	ExcludeCurrent bool
	// Field applies to TimeDerived.
	Field TimeField
}

// Keys designates the ordering and partition columns for a build.
type Keys struct {
	// TimeKey orders rows within a partition; required for Lag, Rolling
	// and TimeDerived specs.
	TimeKey string
	// GroupKeys partition the table; empty means one global partition.
	GroupKeys []string
}

// SpecError reports a malformed spec or a reference to a missing source
// column.
type SpecError struct {
	Spec   string
	Reason string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("feature spec %q: %s", e.Spec, e.Reason)
}

// GroupKeyError reports missing or unusable partition/order columns.
type GroupKeyError struct {
	Column string
	Reason string
}

func (e *GroupKeyError) Error() string {
	return fmt.Sprintf("feature group key %q: %s", e.Column, e.Reason)
}

func validAgg(a Agg) bool {
	switch a {
	case AggMean, AggSum, AggMin, AggMax, AggStd, AggCount:
		return true
	}
	return false
}

func validField(f TimeField) bool {
	switch f {
	case FieldYear, FieldMonth, FieldDay, FieldHour, FieldWeekday,
		FieldISOWeek, FieldISOYear, FieldYearDaySin, FieldYearDayCos:
		return true
	}
	return false
}

// Validate checks the spec's parameters without touching data.
func (s Spec) Validate() error {
	if s.Name == "" {
		return &SpecError{Spec: s.Name, Reason: "empty output name"}
	}
	switch s.Kind {
	case Lag:
		if s.Source == "" {
			return &SpecError{Spec: s.Name, Reason: "lag requires a source column"}
		}
		if s.Offset < 0 {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("negative lag offset %d", s.Offset)}
		}
	case Rolling:
		if s.Source == "" {
			return &SpecError{Spec: s.Name, Reason: "rolling requires a source column"}
		}
		if s.Window <= 0 {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("non-positive window %d", s.Window)}
		}
		if s.MinPeriods < 0 || s.MinPeriods > s.Window {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("min periods %d outside [0,%d]", s.MinPeriods, s.Window)}
		}
		if !validAgg(s.Agg) {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("unknown aggregation %q", s.Agg)}
		}
	case GroupAgg:
		if s.Source == "" {
			return &SpecError{Spec: s.Name, Reason: "groupagg requires a source column"}
		}
		if !validAgg(s.Agg) {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("unknown aggregation %q", s.Agg)}
		}
	case TimeDerived:
		if !validField(s.Field) {
			return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("unknown time field %q", s.Field)}
		}
	default:
		return &SpecError{Spec: s.Name, Reason: fmt.Sprintf("unknown kind %d", s.Kind)}
	}
	return nil
}
