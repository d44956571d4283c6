package sample

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadReference reads a reference table. The header row gives the column
// order; short rows are padded with nulls and long rows are rejected.
func ReadReference(path string) (*stmt.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	t, err := parseReference(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return t, nil
}

func parseReference(r io.Reader) (*stmt.Table, error) {
	reader := gocsv.LazyCSVReader(r)
	if cr, ok := reader.(*csv.Reader); ok {
		cr.FieldsPerRecord = -1
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("blank header in column %d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate header %q", h)
		}
		seen[h] = true
		header[i] = h
	}

	t := stmt.NewTable(header...)
	for n, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", n+2, len(rec), len(header))
		}
		t.Append(rec...)
	}
	return t, nil
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteTable writes t as CSV with a header row.
func WriteTable(w io.Writer, t *stmt.Table) error {
	cw := gocsv.DefaultCSVWriter(w)
	for _, rec := range t.Records() {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
