// Package table provides the in-memory data model shared by the pipeline:
// an ordered set of rows stored as named, typed columns.
package table

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind identifies the value type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Time
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Time:
		return "time"
	}
	return "unknown"
}

// Column is a single named column. Exactly one of the value slices is
// populated, selected by Kind. Nulls are NaN for numeric columns, "" for
// categorical columns and the zero time for time columns.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Times   []time.Time
}

// NumericCol builds a numeric column.
func NumericCol(name string, vals []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Floats: vals}
}

// CategoricalCol builds a categorical column.
func CategoricalCol(name string, vals []string) *Column {
	return &Column{Name: name, Kind: Categorical, Strings: vals}
}

// TimeCol builds a time column.
func TimeCol(name string, vals []time.Time) *Column {
	return &Column{Name: name, Kind: Time, Times: vals}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Numeric:
		return len(c.Floats)
	case Categorical:
		return len(c.Strings)
	case Time:
		return len(c.Times)
	}
	return 0
}

// IsNull reports whether row i holds the column's null value.
func (c *Column) IsNull(i int) bool {
	switch c.Kind {
	case Numeric:
		return math.IsNaN(c.Floats[i])
	case Categorical:
		return c.Strings[i] == ""
	case Time:
		return c.Times[i].IsZero()
	}
	return true
}

// OrderValue maps row i to a sortable float64. Numeric columns return the
// value itself, time columns the Unix nanosecond timestamp. Categorical
// columns have no meaningful order and return an error.
func (c *Column) OrderValue(i int) (float64, error) {
	switch c.Kind {
	case Numeric:
		return c.Floats[i], nil
	case Time:
		return float64(c.Times[i].UnixNano()), nil
	}
	return 0, fmt.Errorf("column %q: kind %s has no order", c.Name, c.Kind)
}

// String returns the row i value formatted for display and CSV output.
func (c *Column) String(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch c.Kind {
	case Numeric:
		return fmt.Sprintf("%g", c.Floats[i])
	case Categorical:
		return c.Strings[i]
	case Time:
		return c.Times[i].Format(time.RFC3339)
	}
	return ""
}

// Clone deep-copies the column.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Numeric:
		out.Floats = append([]float64(nil), c.Floats...)
	case Categorical:
		out.Strings = append([]string(nil), c.Strings...)
	case Time:
		out.Times = append([]time.Time(nil), c.Times...)
	}
	return out
}

// Table is an ordered collection of equal-length columns. Every row has the
// same column set by construction.
type Table struct {
	cols  []*Column
	index map[string]int
}

// New builds a table from columns, rejecting duplicate names and ragged
// lengths.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the backing columns in table order. Callers must treat
// the result as read-only.
func (t *Table) Columns() []*Column { return t.cols }

// Col returns the named column, or false if absent.
func (t *Table) Col(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends a column, enforcing the uniform-length invariant.
func (t *Table) AddColumn(c *Column) error {
	if c.Name == "" {
		return fmt.Errorf("table: column with empty name")
	}
	if _, dup := t.index[c.Name]; dup {
		return fmt.Errorf("table: duplicate column %q", c.Name)
	}
	if len(t.cols) > 0 && c.Len() != t.Len() {
		return fmt.Errorf("table: column %q has %d rows, table has %d", c.Name, c.Len(), t.Len())
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// ShallowCopy returns a new table sharing the existing column storage.
// Appending columns to the copy leaves the original untouched; the shared
// columns themselves must not be mutated.
func (t *Table) ShallowCopy() *Table {
	out := &Table{
		cols:  append([]*Column(nil), t.cols...),
		index: make(map[string]int, len(t.cols)),
	}
	for name, i := range t.index {
		out.index[name] = i
	}
	return out
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.cols))}
	for _, c := range t.cols {
		_ = out.AddColumn(c.Clone())
	}
	return out
}

// Select returns a deep copy containing only the given rows, in order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{index: make(map[string]int, len(t.cols))}
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		switch c.Kind {
		case Numeric:
			nc.Floats = make([]float64, len(rows))
			for i, r := range rows {
				nc.Floats[i] = c.Floats[r]
			}
		case Categorical:
			nc.Strings = make([]string, len(rows))
			for i, r := range rows {
				nc.Strings[i] = c.Strings[r]
			}
		case Time:
			nc.Times = make([]time.Time, len(rows))
			for i, r := range rows {
				nc.Times[i] = c.Times[r]
			}
		}
		_ = out.AddColumn(nc)
	}
	return out
}

// SortByTime returns a copy of the table with rows ordered by the given
// time or numeric column. The sort is stable so ties keep input order.
func (t *Table) SortByTime(timeKey string) (*Table, error) {
	c, ok := t.Col(timeKey)
	if !ok {
		return nil, fmt.Errorf("table: time key %q not found", timeKey)
	}
	if c.Kind == Categorical {
		return nil, fmt.Errorf("table: time key %q is categorical", timeKey)
	}
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		va, _ := c.OrderValue(rows[a])
		vb, _ := c.OrderValue(rows[b])
		return va < vb
	})
	return t.Select(rows), nil
}

// Matrix extracts the named numeric columns as a row-major matrix.
func (t *Table) Matrix(cols []string) ([][]float64, error) {
	src := make([]*Column, len(cols))
	for j, name := range cols {
		c, ok := t.Col(name)
		if !ok {
			return nil, fmt.Errorf("table: column %q not found", name)
		}
		if c.Kind != Numeric {
			return nil, fmt.Errorf("table: column %q is %s, want numeric", name, c.Kind)
		}
		src[j] = c
	}
	out := make([][]float64, t.Len())
	for i := range out {
		row := make([]float64, len(cols))
		for j, c := range src {
			row[j] = c.Floats[i]
		}
		out[i] = row
	}
	return out, nil
}
