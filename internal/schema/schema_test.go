package schema

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

func sampleTable() *stmt.Table {
	t := stmt.NewTable("date", "narration", "withdrawal", "deposit", "balance")
	t.Append("2024-01-01", "ATM", "500", "", "1500")
	t.Append("2024-01-02", "SALARY", "", "2,000.00", "3500")
	return t
}

func TestObserve_Types(t *testing.T) {
	s, err := Observe(sampleTable())
	require.NoError(t, err)

	want := []Column{
		{Name: "date", Type: TypeText},
		{Name: "narration", Type: TypeText},
		{Name: "withdrawal", Type: TypeNumeric, Nullable: true},
		{Name: "deposit", Type: TypeNumeric, Nullable: true},
		{Name: "balance", Type: TypeNumeric},
	}
	assert.Equal(t, want, s.Columns)
}

func TestObserve_EmptyReference(t *testing.T) {
	_, err := Observe(stmt.NewTable("a"))
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, err = Observe(nil)
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestObserve_ColumnSetMatchesRows(t *testing.T) {
	tables := []*stmt.Table{
		sampleTable(),
		{Columns: []string{"x"}, Rows: []stmt.Row{{"x": "1"}}},
		{Rows: []stmt.Row{{"b": "y", "a": "1"}, {"a": "2", "b": "z"}}},
	}
	for _, tbl := range tables {
		s, err := Observe(tbl)
		require.NoError(t, err)

		names := append([]string(nil), s.Names()...)
		sort.Strings(names)
		for i, row := range tbl.Rows {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			assert.Equal(t, names, keys, "row %d", i)
		}
	}
}

func TestObserve_AllNullColumnIsNumericNullable(t *testing.T) {
	tbl := stmt.NewTable("a", "b")
	tbl.Append("x", "")
	s, err := Observe(tbl)
	require.NoError(t, err)

	col, ok := s.Column("b")
	require.True(t, ok)
	assert.Equal(t, TypeNumeric, col.Type)
	assert.True(t, col.Nullable)
}

func TestObserve_CaseInsensitive(t *testing.T) {
	s, err := Observe(sampleTable(), WithCaseInsensitive("narration", "balance"))
	require.NoError(t, err)

	narration, _ := s.Column("narration")
	assert.True(t, narration.CaseInsensitive)

	// Only text columns honour the flag.
	balance, _ := s.Column("balance")
	assert.False(t, balance.CaseInsensitive)
}

func TestObserve_Deterministic(t *testing.T) {
	a, err := Observe(sampleTable())
	require.NoError(t, err)
	b, err := Observe(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSchemaString(t *testing.T) {
	s, err := Observe(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "date text\nnarration text\nwithdrawal numeric nullable\ndeposit numeric nullable\nbalance numeric", s.String())
}

func TestColumn_Unknown(t *testing.T) {
	s, err := Observe(sampleTable())
	require.NoError(t, err)
	_, ok := s.Column("nope")
	assert.False(t, ok)
}
