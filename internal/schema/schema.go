// Package schema derives the expected output contract of a parser from its
// reference table.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// ErrEmptyReference is returned when the reference table has no rows.
var ErrEmptyReference = errors.New("reference table has no rows")

// ColumnType is the value type inferred for a column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumeric ColumnType = "numeric"
)

// Column describes one expected output column.
type Column struct {
	Name            string
	Type            ColumnType
	Nullable        bool
	CaseInsensitive bool
}

// Schema is the ordered set of expected output columns.
type Schema struct {
	Columns []Column
}

// Option adjusts Observe.
type Option func(*options)

type options struct {
	caseInsensitive map[string]bool
}

// WithCaseInsensitive marks text columns that compare case-insensitively.
func WithCaseInsensitive(columns ...string) Option {
	return func(o *options) {
		for _, c := range columns {
			o.caseInsensitive[c] = true
		}
	}
}

// Observe infers a Schema from ref. A column is numeric when every
// populated cell parses as a number, and nullable when any cell is null.
func Observe(ref *stmt.Table, opts ...Option) (Schema, error) {
	if ref.Len() == 0 {
		return Schema{}, ErrEmptyReference
	}
	o := options{caseInsensitive: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	names := ref.ColumnNames()
	cols := make([]Column, len(names))
	for i, name := range names {
		col := Column{Name: name, Type: TypeNumeric}
		for _, row := range ref.Rows {
			v, ok := row.Get(name)
			if !ok {
				col.Nullable = true
				continue
			}
			if _, num := stmt.ParseAmount(v); !num {
				col.Type = TypeText
			}
		}
		col.CaseInsensitive = col.Type == TypeText && o.caseInsensitive[name]
		cols[i] = col
	}
	return Schema{Columns: cols}, nil
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// String renders the schema one column per line, e.g.
// "Balance numeric" or "Credit Amt numeric nullable".
func (s Schema) String() string {
	var b strings.Builder
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s", c.Name, c.Type)
		if c.Nullable {
			b.WriteString(" nullable")
		}
		if c.CaseInsensitive {
			b.WriteString(" case-insensitive")
		}
	}
	return b.String()
}
