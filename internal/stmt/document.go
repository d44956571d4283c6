// Package stmt holds the statement model shared between the host and
// generated parsing routines. Routines see it as the "stmt" package.
package stmt

import "strings"

// Document is the extracted content of a sample statement.
type Document struct {
	Path  string `json:"path"`
	Pages []Page `json:"pages"`
}

// Page is one page of extracted statement content.
type Page struct {
	Number int        `json:"number"` // 1-based
	Text   string     `json:"text"`
	Lines  [][]string `json:"lines"` // visual rows, cells left to right
}

// Text returns the text of all pages separated by newlines.
func (d Document) Text() string {
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{Path: d.Path}
	if d.Pages == nil {
		return out
	}
	out.Pages = make([]Page, len(d.Pages))
	for i, p := range d.Pages {
		out.Pages[i] = Page{Number: p.Number, Text: p.Text}
		if p.Lines == nil {
			continue
		}
		out.Pages[i].Lines = make([][]string, len(p.Lines))
		for j, cells := range p.Lines {
			if cells != nil {
				out.Pages[i].Lines[j] = append([]string(nil), cells...)
			}
		}
	}
	return out
}

// Lines returns the visual rows of all pages in reading order.
func (d Document) Lines() [][]string {
	var lines [][]string
	for _, p := range d.Pages {
		lines = append(lines, p.Lines...)
	}
	return lines
}

// JoinCells renders a visual row the way Page.Text does.
func JoinCells(cells []string) string {
	return strings.Join(cells, "  ")
}

// SplitColumns splits a text line into cells at runs of two or more spaces
// or at tabs.
func SplitColumns(line string) []string {
	var cells []string
	var cur strings.Builder
	spaces := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, s)
		}
		cur.Reset()
	}
	for _, r := range line {
		switch r {
		case '\t':
			flush()
			spaces = 0
		case ' ':
			spaces++
		default:
			if spaces >= 2 {
				flush()
			} else if spaces == 1 {
				cur.WriteByte(' ')
			}
			spaces = 0
			cur.WriteRune(r)
		}
	}
	flush()
	return cells
}
