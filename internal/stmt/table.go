package stmt

import (
	"sort"
	"strings"
)

// Row maps a column name to its cell text. A missing key or a null marker
// (see IsNull) is an absent value.
type Row map[string]string

// Table is an ordered sequence of rows with a declared column order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable returns an empty table with the given column order.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row from positional values matching t.Columns. Missing
// trailing values are left absent; extra values are dropped.
func (t *Table) Append(values ...string) {
	row := make(Row, len(t.Columns))
	for i, col := range t.Columns {
		if i < len(values) {
			row[col] = values[i]
		} else {
			row[col] = ""
		}
	}
	t.Rows = append(t.Rows, row)
}

// AppendRow adds a row given as a column map.
func (t *Table) AppendRow(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows; a nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnNames returns t.Columns, or the sorted union of row keys when the
// table does not declare an order.
func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	if len(t.Columns) > 0 {
		return t.Columns
	}
	seen := make(map[string]bool)
	var cols []string
	for _, r := range t.Rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// Get returns the cell for col and whether it holds a value.
func (r Row) Get(col string) (string, bool) {
	v, ok := r[col]
	if !ok || IsNull(v) {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Records renders the table as header + rows for CSV output.
func (t *Table) Records() [][]string {
	cols := t.ColumnNames()
	out := make([][]string, 0, t.Len()+1)
	out = append(out, append([]string(nil), cols...))
	if t == nil {
		return out
	}
	for _, r := range t.Rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := r.Get(c); ok {
				rec[i] = v
			}
		}
		out = append(out, rec)
	}
	return out
}

var nullMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"none": true,
	"n/a":  true,
	"<na>": true,
}

// IsNull reports whether a cell is blank or one of the usual
// missing-value markers (NaN, null, None, N/A).
func IsNull(v string) bool {
	return nullMarkers[strings.ToLower(strings.TrimSpace(v))]
}
