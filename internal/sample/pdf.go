package sample

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// Layout defaults, in points or multiples of the font size.
const (
	defaultLineTolerance = 2.0
	defaultWordGap       = 0.15
	defaultCellGap       = 1.0
	fallbackFontSize     = 10.0
)

// PDFReader extracts text page by page and rebuilds visual rows from the
// positioned text runs.
type PDFReader struct {
	// LineTolerance is the maximum baseline difference of runs on one line.
	LineTolerance float64
	// CellGap is the horizontal gap, in font sizes, that starts a new cell.
	CellGap float64
}

// ReadDocument implements DocumentReader. The pdf library panics on some
// malformed files; those panics come back as ErrSourceUnavailable.
func (r PDFReader) ReadDocument(ctx context.Context, path string) (doc stmt.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: malformed pdf: %v", ErrSourceUnavailable, path, rec)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return stmt.Document{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return stmt.Document{}, err
	}

	rd, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return stmt.Document{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}

	doc.Path = path
	for i := 1; i <= rd.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return stmt.Document{}, err
		}
		p := rd.Page(i)
		if p.V.IsNull() {
			continue
		}
		lines := r.layout(p.Content().Text)
		rendered := make([]string, len(lines))
		for j, cells := range lines {
			rendered[j] = stmt.JoinCells(cells)
		}
		doc.Pages = append(doc.Pages, stmt.Page{
			Number: i,
			Text:   strings.Join(rendered, "\n"),
			Lines:  lines,
		})
	}
	return doc, nil
}

func (r PDFReader) layout(texts []pdf.Text) [][]string {
	tol := r.LineTolerance
	if tol <= 0 {
		tol = defaultLineTolerance
	}
	gap := r.CellGap
	if gap <= 0 {
		gap = defaultCellGap
	}
	return layoutLines(texts, tol, gap)
}

// layoutLines groups text runs into visual lines (top to bottom, by
// baseline within tol) and splits each line into cells where the
// horizontal gap exceeds cellGap font sizes.
func layoutLines(texts []pdf.Text, tol, cellGap float64) [][]string {
	runs := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S != "" {
			runs = append(runs, t)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Y > runs[j].Y })

	var groups [][]pdf.Text
	for _, t := range runs {
		n := len(groups)
		if n > 0 && math.Abs(groups[n-1][0].Y-t.Y) <= tol {
			groups[n-1] = append(groups[n-1], t)
			continue
		}
		groups = append(groups, []pdf.Text{t})
	}

	var lines [][]string
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].X < g[j].X })
		if cells := splitCells(g, cellGap); len(cells) > 0 {
			lines = append(lines, cells)
		}
	}
	return lines
}

func splitCells(line []pdf.Text, cellGap float64) []string {
	var cells []string
	var cur strings.Builder
	flush := func() {
		cells = append(cells, stmt.SplitColumns(cur.String())...)
		cur.Reset()
	}

	for i, t := range line {
		if i > 0 {
			prev := line[i-1]
			size := prev.FontSize
			if size <= 0 {
				size = fallbackFontSize
			}
			dx := t.X - (prev.X + prev.W)
			switch {
			case dx > cellGap*size:
				flush()
			case dx > defaultWordGap*size:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(t.S)
	}
	flush()
	return cells
}
