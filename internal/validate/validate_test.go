package validate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
)

var cols = []string{"date", "narration", "withdrawal", "deposit", "balance"}

func atmReference() *stmt.Table {
	t := stmt.NewTable(cols...)
	t.Append("2024-01-01", "ATM", "500", "", "1500")
	return t
}

func observe(t *testing.T, ref *stmt.Table, opts ...schema.Option) schema.Schema {
	t.Helper()
	s, err := schema.Observe(ref, opts...)
	require.NoError(t, err)
	return s
}

func withTolerance(s string) Options {
	return Options{Tolerance: decimal.RequireFromString(s)}
}

func TestValidate_Reflexive(t *testing.T) {
	tables := []*stmt.Table{
		atmReference(),
		{Rows: []stmt.Row{{"a": "x", "b": "1.5"}, {"a": "y"}}},
		func() *stmt.Table {
			t := stmt.NewTable("Date", "Description", "Debit Amt", "Credit Amt", "Balance")
			t.Append("01-08-2024", "Salary Credit XYZ Pvt Ltd", "", "1935.3", "6864.58")
			t.Append("02-08-2024", "Salary Credit XYZ Pvt Ltd", "", "1652.61", "8517.19")
			t.Append("02-08-2024", "IMPS UPI Payment Amazon", "3886.08", "", "4631.11")
			return t
		}(),
	}
	for _, tbl := range tables {
		v := Validate(tbl, tbl, observe(t, tbl), DefaultOptions())
		assert.True(t, v.Pass, "Validate(T, T) should pass: %s", v.Summary())
	}
}

func TestValidate_IdenticalRowPasses(t *testing.T) {
	ref := atmReference()
	got := atmReference()
	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.True(t, v.Pass)
	assert.Equal(t, "pass (1 rows)", v.Summary())
}

func TestValidate_NumericTolerance(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", "ATM", "500.00", "", "1499.999")
	s := observe(t, ref)

	v := Validate(got, ref, s, withTolerance("0.01"))
	assert.True(t, v.Pass, v.Summary())

	v = Validate(got, ref, s, withTolerance("0.0001"))
	require.False(t, v.Pass)
	assert.Equal(t, 1, v.Mismatches())
	assert.Equal(t, "1 of 1 rows differ", v.Summary())
	want := []RowDiff{{Index: 0, Fields: []FieldDiff{{Column: "balance", Expected: "1500", Got: "1499.999"}}}}
	if diff := cmp.Diff(want, v.Rows); diff != "" {
		t.Errorf("row diffs mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_ZeroToleranceUsesDefault(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", "ATM", "500.00", "", "1499.999")

	v := Validate(got, ref, observe(t, ref), Options{})
	assert.True(t, v.Pass, v.Summary())
}

func TestValidate_TrailingZerosAndSeparators(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", " ATM ", "500.0", "nan", "1,500.00")
	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.True(t, v.Pass, v.Summary())
}

func TestValidate_RowCountDelta(t *testing.T) {
	ref := atmReference()
	ref.Append("2024-01-02", "SALARY", "", "2000", "3500")
	got := atmReference()

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.False(t, v.Pass)
	assert.Equal(t, 1, v.RowDelta)
	assert.Equal(t, 2, v.ExpectedRows)
	assert.Equal(t, 1, v.GotRows)
	assert.Equal(t, 1, v.Compared())
	assert.Empty(t, v.Rows, "missing row must not produce field diffs")
	assert.Equal(t, "row count expected 2 got 1", v.Summary())
}

func TestValidate_NullMismatch(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", "ATM", "", "500", "1500")

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	require.False(t, v.Pass)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, []FieldDiff{
		{Column: "withdrawal", Expected: "500", Got: "<null>"},
		{Column: "deposit", Expected: "<null>", Got: "500"},
	}, v.Rows[0].Fields)
}

func TestValidate_TextCaseSensitivity(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", "atm", "500", "", "1500")

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.False(t, v.Pass, "case-sensitive by default")

	v = Validate(got, ref, observe(t, ref, schema.WithCaseInsensitive("narration")), DefaultOptions())
	assert.True(t, v.Pass, v.Summary())
}

func TestValidate_UnparseableNumeric(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable(cols...)
	got.Append("2024-01-01", "ATM", "five hundred", "", "1500")

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	require.False(t, v.Pass)
	assert.Equal(t, "withdrawal", v.Rows[0].Fields[0].Column)
}

func TestValidate_Columns(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable("date", "narration", "withdrawal", "credit", "balance")
	got.Append("2024-01-01", "ATM", "500", "", "1500")

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.False(t, v.Pass)
	assert.Equal(t, []string{"deposit"}, v.MissingColumns)
	assert.Equal(t, []string{"credit"}, v.ExtraColumns)
	assert.False(t, v.OrderMismatch)
}

func TestValidate_ColumnOrder(t *testing.T) {
	ref := atmReference()
	got := stmt.NewTable("narration", "date", "withdrawal", "deposit", "balance")
	got.Append("ATM", "2024-01-01", "500", "", "1500")

	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.False(t, v.Pass)
	assert.True(t, v.OrderMismatch)
	assert.Empty(t, v.Rows)
	assert.Equal(t, "column order differs", v.Summary())
}

func TestValidate_UndeclaredColumnsSkipOrderCheck(t *testing.T) {
	ref := atmReference()
	got := &stmt.Table{Rows: []stmt.Row{{
		"balance": "1500", "date": "2024-01-01", "deposit": "", "narration": "ATM", "withdrawal": "500",
	}}}
	v := Validate(got, ref, observe(t, ref), DefaultOptions())
	assert.True(t, v.Pass, v.Summary())
}

func TestValidate_NilProduced(t *testing.T) {
	ref := atmReference()
	v := Validate(nil, ref, observe(t, ref), DefaultOptions())
	assert.False(t, v.Pass)
	assert.Equal(t, 0, v.GotRows)
	assert.Equal(t, 1, v.RowDelta)
	assert.Empty(t, v.MissingColumns)
}

func TestVerdict_ZeroValueIsNotPass(t *testing.T) {
	assert.False(t, Verdict{}.Pass)
}
