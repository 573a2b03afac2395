// Package dataset holds the in-memory tabular value exchanged between the
// dataset-loader collaborator, the table services, and the backend driver.
package dataset

import (
	"encoding/json"
	"fmt"
)

// Dataset is an ordered-column, row-major table. Cell values are one of
// int64, float64, bool, string, []float32 or nil.
type Dataset struct {
	columns []string
	rows    [][]any
}

// New creates an empty dataset with the given column order.
func New(columns []string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{columns: cols}
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	cols := make([]string, len(d.columns))
	copy(cols, d.columns)
	return cols
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Append adds a row. The row length must match the column count.
func (d *Dataset) Append(row []any) error {
	if len(row) != len(d.columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(row), len(d.columns))
	}
	d.rows = append(d.rows, row)
	return nil
}

// Row returns the i-th row. The slice is shared, not copied.
func (d *Dataset) Row(i int) []any { return d.rows[i] }

// HasColumn reports whether the dataset contains the named column.
func (d *Dataset) HasColumn(name string) bool {
	return d.columnIndex(name) >= 0
}

// Value returns the cell at (row, column).
func (d *Dataset) Value(row int, column string) (any, bool) {
	idx := d.columnIndex(column)
	if idx < 0 || row < 0 || row >= len(d.rows) {
		return nil, false
	}
	return d.rows[row][idx], true
}

// Column returns all values of the named column.
func (d *Dataset) Column(name string) ([]any, bool) {
	idx := d.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(d.rows))
	for i, row := range d.rows {
		values[i] = row[idx]
	}
	return values, true
}

// AddColumn appends a new column with one value per existing row.
func (d *Dataset) AddColumn(name string, values []any) error {
	if d.columnIndex(name) >= 0 {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(d.rows) {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", name, len(values), len(d.rows))
	}
	d.columns = append(d.columns, name)
	for i := range d.rows {
		d.rows[i] = append(d.rows[i], values[i])
	}
	return nil
}

// Filter returns a new dataset keeping only rows for which keep(i) is true.
func (d *Dataset) Filter(keep func(i int) bool) *Dataset {
	out := New(d.columns)
	for i, row := range d.rows {
		if keep(i) {
			copied := make([]any, len(row))
			copy(copied, row)
			out.rows = append(out.rows, copied)
		}
	}
	return out
}

// Without returns a new dataset with the named columns dropped. Unknown
// names are ignored.
func (d *Dataset) Without(columns ...string) *Dataset {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}

	var kept []string
	var keptIdx []int
	for i, c := range d.columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
			keptIdx = append(keptIdx, i)
		}
	}

	out := New(kept)
	for _, row := range d.rows {
		projected := make([]any, len(keptIdx))
		for j, idx := range keptIdx {
			projected[j] = row[idx]
		}
		out.rows = append(out.rows, projected)
	}
	return out
}

// Records converts rows into column→value maps, one per row.
func (d *Dataset) Records() []map[string]any {
	records := make([]map[string]any, len(d.rows))
	for i, row := range d.rows {
		rec := make(map[string]any, len(d.columns))
		for j, col := range d.columns {
			rec[col] = row[j]
		}
		records[i] = rec
	}
	return records
}

// DeclaredType returns the type tag of a column, derived from its first
// non-nil value. Recomputed on every call, never cached.
func (d *Dataset) DeclaredType(column string) string {
	idx := d.columnIndex(column)
	if idx < 0 {
		return TypeNull
	}
	for _, row := range d.rows {
		if row[idx] != nil {
			return TypeOf(row[idx])
		}
	}
	return TypeNull
}

// MarshalJSON emits {"columns":[...],"records":[...]}.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Columns []string         `json:"columns"`
		Records []map[string]any `json:"records"`
	}{d.Columns(), d.Records()})
}

func (d *Dataset) columnIndex(name string) int {
	for i, c := range d.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Declared type tags, mirroring the arrow-style names the presentation
// layer matches against.
const (
	TypeInt64     = "int64"
	TypeDouble    = "double"
	TypeBool      = "bool"
	TypeString    = "string"
	TypeFloatList = "list<float>"
	TypeNull      = "null"
)

// TypeOf maps a cell value to its declared type tag.
func TypeOf(v any) string {
	switch v.(type) {
	case int64:
		return TypeInt64
	case float64:
		return TypeDouble
	case bool:
		return TypeBool
	case string:
		return TypeString
	case []float32:
		return TypeFloatList
	case nil:
		return TypeNull
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsNumericType reports whether a declared type tag is numeric.
func IsNumericType(t string) bool {
	return t == TypeInt64 || t == TypeDouble
}
