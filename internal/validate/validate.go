// Package validate compares a produced table against the reference table.
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
)

// DefaultTolerance is the absolute tolerance for numeric columns.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Options controls comparison rules.
type Options struct {
	Tolerance decimal.Decimal // zero means DefaultTolerance
}

// DefaultOptions returns Options with DefaultTolerance.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance}
}

// FieldDiff is one differing cell.
type FieldDiff struct {
	Column   string
	Expected string
	Got      string
}

// RowDiff lists the differing cells of one row index.
type RowDiff struct {
	Index  int // 0-based
	Fields []FieldDiff
}

// Verdict is the outcome of a comparison. The zero value is not a pass.
type Verdict struct {
	Pass           bool
	ExpectedRows   int
	GotRows        int
	RowDelta       int // expected - got
	MissingColumns []string
	ExtraColumns   []string
	OrderMismatch  bool
	GotColumns     []string
	Rows           []RowDiff
}

// Mismatches returns the number of compared rows that differ.
func (v Verdict) Mismatches() int {
	return len(v.Rows)
}

// Compared returns the number of row indices compared cell by cell.
func (v Verdict) Compared() int {
	return min(v.ExpectedRows, v.GotRows)
}

// Summary renders a one-line description of the verdict.
func (v Verdict) Summary() string {
	if v.Pass {
		return fmt.Sprintf("pass (%d rows)", v.ExpectedRows)
	}
	var parts []string
	if v.RowDelta != 0 {
		parts = append(parts, fmt.Sprintf("row count expected %d got %d", v.ExpectedRows, v.GotRows))
	}
	if len(v.MissingColumns) > 0 {
		parts = append(parts, "missing columns "+strings.Join(v.MissingColumns, ", "))
	}
	if len(v.ExtraColumns) > 0 {
		parts = append(parts, "extra columns "+strings.Join(v.ExtraColumns, ", "))
	}
	if v.OrderMismatch {
		parts = append(parts, "column order differs")
	}
	if n := v.Mismatches(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d rows differ", n, v.Compared()))
	}
	return strings.Join(parts, "; ")
}

// Validate compares got against ref under the column rules of s.
// Only row indices present in both tables are compared cell by cell.
func Validate(got, ref *stmt.Table, s schema.Schema, opts Options) Verdict {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = DefaultTolerance
	}
	v := Verdict{
		ExpectedRows: ref.Len(),
		GotRows:      got.Len(),
	}
	v.RowDelta = v.ExpectedRows - v.GotRows
	v.GotColumns = got.ColumnNames()
	checkColumns(&v, got, s)

	for i := 0; i < v.Compared(); i++ {
		var fields []FieldDiff
		for _, col := range s.Columns {
			want, wantOK := ref.Rows[i].Get(col.Name)
			have, haveOK := got.Rows[i].Get(col.Name)
			if !cellsEqual(col, want, wantOK, have, haveOK, opts.Tolerance) {
				fields = append(fields, FieldDiff{
					Column:   col.Name,
					Expected: display(want, wantOK),
					Got:      display(have, haveOK),
				})
			}
		}
		if len(fields) > 0 {
			v.Rows = append(v.Rows, RowDiff{Index: i, Fields: fields})
		}
	}

	v.Pass = v.RowDelta == 0 &&
		len(v.MissingColumns) == 0 &&
		len(v.ExtraColumns) == 0 &&
		!v.OrderMismatch &&
		len(v.Rows) == 0
	return v
}

func checkColumns(v *Verdict, got *stmt.Table, s schema.Schema) {
	want := s.Names()
	have := v.GotColumns
	// A table without rows or declared columns says nothing about columns.
	if len(have) == 0 {
		if got.Len() > 0 {
			v.MissingColumns = want
		}
		return
	}

	haveSet := make(map[string]bool, len(have))
	for _, c := range have {
		haveSet[c] = true
	}
	wantSet := make(map[string]bool, len(want))
	for _, c := range want {
		wantSet[c] = true
		if !haveSet[c] {
			v.MissingColumns = append(v.MissingColumns, c)
		}
	}
	for _, c := range have {
		if !wantSet[c] {
			v.ExtraColumns = append(v.ExtraColumns, c)
		}
	}

	if got.Columns == nil || len(v.MissingColumns) > 0 || len(v.ExtraColumns) > 0 {
		return
	}
	for i := range want {
		if want[i] != have[i] {
			v.OrderMismatch = true
			return
		}
	}
}

func cellsEqual(col schema.Column, want string, wantOK bool, have string, haveOK bool, tol decimal.Decimal) bool {
	if !wantOK || !haveOK {
		return wantOK == haveOK
	}
	if col.Type == schema.TypeNumeric {
		w, wok := stmt.ParseAmount(want)
		h, hok := stmt.ParseAmount(have)
		if !wok || !hok {
			return want == have
		}
		return w.Sub(h).Abs().LessThanOrEqual(tol)
	}
	if col.CaseInsensitive {
		return strings.EqualFold(want, have)
	}
	return want == have
}

func display(v string, ok bool) string {
	if !ok {
		return "<null>"
	}
	return v
}
