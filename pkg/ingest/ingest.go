// Package ingest reads raw CSV files into tables, sniffing column types
// and aligning schemas across appended sources.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"tabpipe/pkg/table"
)

// Options configures CSV reading.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// TimeLayouts tried in order when sniffing time columns.
	TimeLayouts []string
	// SkipMalformed drops rows with the wrong field count instead of
	// failing the whole file.
	SkipMalformed bool
}

// DefaultTimeLayouts are tried when Options.TimeLayouts is empty.
var DefaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ReadCSV loads a CSV file with a header row into a typed table.
func ReadCSV(path string, opts Options) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	if opts.Comma != 0 {
		r.Comma = opts.Comma
	}
	if opts.SkipMalformed {
		r.FieldsPerRecord = -1
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ingest %s: empty file", path)
	}
	header := records[0]
	rows := records[1:]
	if opts.SkipMalformed {
		kept := rows[:0]
		for _, row := range rows {
			if len(row) == len(header) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return FromRecords(header, rows, opts)
}

// FromRecords builds a typed table from a header and string rows. Each
// column's type is sniffed from its non-missing values: time layouts
// first, then float, else categorical.
func FromRecords(header []string, rows [][]string, opts Options) (*table.Table, error) {
	layouts := opts.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	cols := make([]*table.Column, len(header))
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, row := range rows {
			if j >= len(row) {
				return nil, fmt.Errorf("ingest: row %d has %d fields, header has %d", i, len(row), len(header))
			}
			raw[i] = strings.TrimSpace(row[j])
		}
		cols[j] = sniffColumn(name, raw, layouts)
	}
	return table.New(cols...)
}

func sniffColumn(name string, raw []string, layouts []string) *table.Column {
	if layout, ok := sniffTime(raw, layouts); ok {
		times := make([]time.Time, len(raw))
		for i, s := range raw {
			if isMissing(s) {
				continue
			}
			ts, err := time.Parse(layout, s)
			if err == nil {
				times[i] = ts
			}
		}
		return table.TimeCol(name, times)
	}
	if sniffFloat(raw) {
		vals := make([]float64, len(raw))
		for i, s := range raw {
			if isMissing(s) {
				vals[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				v = math.NaN()
			}
			vals[i] = v
		}
		return table.NumericCol(name, vals)
	}
	vals := make([]string, len(raw))
	for i, s := range raw {
		if isMissing(s) {
			continue
		}
		vals[i] = s
	}
	return table.CategoricalCol(name, vals)
}

// sniffTime returns the first layout that parses every non-missing value.
func sniffTime(raw []string, layouts []string) (string, bool) {
	for _, layout := range layouts {
		seen := false
		ok := true
		for _, s := range raw {
			if isMissing(s) {
				continue
			}
			seen = true
			if _, err := time.Parse(layout, s); err != nil {
				ok = false
				break
			}
		}
		if ok && seen {
			return layout, true
		}
	}
	return "", false
}

func sniffFloat(raw []string) bool {
	seen := false
	for _, s := range raw {
		if isMissing(s) {
			continue
		}
		seen = true
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
	}
	return seen
}

func isMissing(s string) bool {
	switch s {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}

// Align returns a copy of t carrying every column in schema, adding
// missing ones as all-null numeric columns so appended sources share a
// column set.
func Align(t *table.Table, schema []string) *table.Table {
	out := t.ShallowCopy()
	for _, name := range schema {
		if out.Has(name) {
			continue
		}
		nulls := make([]float64, out.Len())
		for i := range nulls {
			nulls[i] = math.NaN()
		}
		_ = out.AddColumn(table.NumericCol(name, nulls))
	}
	return out
}

// AppendRow returns a copy of t with one row appended. Values are parsed
// per the column's kind; absent keys become nulls.
func AppendRow(t *table.Table, row map[string]string, opts Options) (*table.Table, error) {
	layouts := opts.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	out := t.Clone()
	for _, c := range out.Columns() {
		s, ok := row[c.Name]
		s = strings.TrimSpace(s)
		missing := !ok || isMissing(s)
		switch c.Kind {
		case table.Numeric:
			v := math.NaN()
			if !missing {
				parsed, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("ingest: column %q: %w", c.Name, err)
				}
				v = parsed
			}
			c.Floats = append(c.Floats, v)
		case table.Categorical:
			v := ""
			if !missing {
				v = s
			}
			c.Strings = append(c.Strings, v)
		case table.Time:
			var v time.Time
			if !missing {
				parsed := false
				for _, layout := range layouts {
					if ts, err := time.Parse(layout, s); err == nil {
						v = ts
						parsed = true
						break
					}
				}
				if !parsed {
					return nil, fmt.Errorf("ingest: column %q: cannot parse time %q", c.Name, s)
				}
			}
			c.Times = append(c.Times, v)
		}
	}
	return out, nil
}
