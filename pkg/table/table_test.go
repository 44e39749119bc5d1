package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadColumns(t *testing.T) {
	_, err := New(
		NumericCol("a", []float64{1, 2}),
		NumericCol("a", []float64{3, 4}),
	)
	require.Error(t, err, "duplicate names")

	_, err = New(
		NumericCol("a", []float64{1, 2}),
		NumericCol("b", []float64{3}),
	)
	require.Error(t, err, "ragged lengths")

	_, err = New(NumericCol("", []float64{1}))
	require.Error(t, err, "empty name")
}

func TestNulls(t *testing.T) {
	tab, err := New(
		NumericCol("x", []float64{1, math.NaN()}),
		CategoricalCol("c", []string{"a", ""}),
		TimeCol("d", []time.Time{time.Now(), {}}),
	)
	require.NoError(t, err)
	for _, c := range tab.Columns() {
		assert.False(t, c.IsNull(0), c.Name)
		assert.True(t, c.IsNull(1), c.Name)
	}
}

func TestShallowCopyIsolatesAddedColumns(t *testing.T) {
	tab, err := New(NumericCol("x", []float64{1, 2}))
	require.NoError(t, err)

	cp := tab.ShallowCopy()
	require.NoError(t, cp.AddColumn(NumericCol("y", []float64{3, 4})))

	assert.True(t, cp.Has("y"))
	assert.False(t, tab.Has("y"), "original must not grow")
}

func TestSelect(t *testing.T) {
	tab, err := New(
		NumericCol("x", []float64{10, 20, 30}),
		CategoricalCol("g", []string{"a", "b", "c"}),
	)
	require.NoError(t, err)

	sub := tab.Select([]int{2, 0})
	assert.Equal(t, 2, sub.Len())
	x, _ := sub.Col("x")
	assert.Equal(t, []float64{30, 10}, x.Floats)
	g, _ := sub.Col("g")
	assert.Equal(t, []string{"c", "a"}, g.Strings)
}

func TestSortByTimeIsStable(t *testing.T) {
	tab, err := New(
		NumericCol("t", []float64{2, 1, 2, 1}),
		CategoricalCol("tag", []string{"p", "q", "r", "s"}),
	)
	require.NoError(t, err)

	sorted, err := tab.SortByTime("t")
	require.NoError(t, err)
	tag, _ := sorted.Col("tag")
	assert.Equal(t, []string{"q", "s", "p", "r"}, tag.Strings)

	_, err = tab.SortByTime("tag")
	require.Error(t, err, "categorical keys have no order")
	_, err = tab.SortByTime("missing")
	require.Error(t, err)
}

func TestMatrix(t *testing.T) {
	tab, err := New(
		NumericCol("a", []float64{1, 2}),
		NumericCol("b", []float64{3, 4}),
		CategoricalCol("c", []string{"x", "y"}),
	)
	require.NoError(t, err)

	m, err := tab.Matrix([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 1}, {4, 2}}, m)

	_, err = tab.Matrix([]string{"c"})
	require.Error(t, err, "non-numeric column")
	_, err = tab.Matrix([]string{"zz"})
	require.Error(t, err)
}

func TestColumnString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tab, err := New(
		NumericCol("x", []float64{1.5, math.NaN()}),
		TimeCol("d", []time.Time{ts, {}}),
	)
	require.NoError(t, err)
	x, _ := tab.Col("x")
	assert.Equal(t, "1.5", x.String(0))
	assert.Equal(t, "", x.String(1))
	d, _ := tab.Col("d")
	assert.Equal(t, "2024-03-01T12:00:00Z", d.String(0))
}
