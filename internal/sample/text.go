package sample

import (
	"context"
	"os"
	"strings"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// TextReader reads an already extracted statement. Form feeds separate
// pages; cells are split at runs of two or more spaces or tabs.
type TextReader struct{}

// ReadDocument implements DocumentReader.
func (TextReader) ReadDocument(_ context.Context, path string) (stmt.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stmt.Document{}, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	doc := stmt.Document{Path: path}
	for i, body := range strings.Split(text, "\f") {
		page := stmt.Page{Number: i + 1}
		var lines []string
		for _, line := range strings.Split(body, "\n") {
			cells := stmt.SplitColumns(line)
			if len(cells) == 0 {
				continue
			}
			page.Lines = append(page.Lines, cells)
			lines = append(lines, stmt.JoinCells(cells))
		}
		page.Text = strings.Join(lines, "\n")
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}
