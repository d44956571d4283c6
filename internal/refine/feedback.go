package refine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/cleared-dev/parsergen/internal/sandbox"
	"github.com/cleared-dev/parsergen/internal/validate"
)

// Feedback defaults.
const (
	DefaultFeedbackLimit = 4000
	DefaultFeedbackRows  = 10
)

const truncatedMarker = "\n... (truncated)"

func generationFeedback(err error, limit int) string {
	return clip("generation failed: "+err.Error(), limit)
}

func executionFeedback(f *sandbox.Failure, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "execution failed (%s): %s", f.Kind, f.Message)
	switch f.Kind {
	case sandbox.FailureLoad:
		b.WriteString("\nThe routine did not load. Check syntax, imports and the Parse signature.")
	case sandbox.FailureTimeout:
		b.WriteString("\nThe routine ran too long. Avoid unbounded loops.")
	}
	if trace := strings.TrimSpace(f.Trace); trace != "" {
		b.WriteString("\ntrace:\n")
		b.WriteString(trace)
	}
	return clip(b.String(), limit)
}

func mismatchFeedback(v validate.Verdict, maxRows, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "output did not match the expected table: %s", v.Summary())

	if v.RowDelta != 0 {
		fmt.Fprintf(&b, "\nexpected %d rows, got %d", v.ExpectedRows, v.GotRows)
		if v.RowDelta > 0 {
			b.WriteString(" (rows are missing)")
		} else {
			b.WriteString(" (extra rows were produced)")
		}
	}
	for _, col := range v.MissingColumns {
		fmt.Fprintf(&b, "\nmissing column %q", col)
		if hint, ok := closestColumn(col, v.ExtraColumns); ok {
			fmt.Fprintf(&b, " (closest produced column: %q)", hint)
		}
	}
	if len(v.ExtraColumns) > 0 {
		fmt.Fprintf(&b, "\nunexpected columns: %s", strings.Join(v.ExtraColumns, ", "))
	}
	if v.OrderMismatch {
		fmt.Fprintf(&b, "\ncolumn order: got %s", strings.Join(v.GotColumns, ", "))
	}

	if len(v.Rows) > 0 {
		shown := min(len(v.Rows), maxRows)
		fmt.Fprintf(&b, "\nfirst %d of %d differing rows (0-based):", shown, len(v.Rows))
		for _, row := range v.Rows[:shown] {
			fmt.Fprintf(&b, "\nrow %d:", row.Index)
			for _, f := range row.Fields {
				fmt.Fprintf(&b, " %s expected %q got %q;", f.Column, f.Expected, f.Got)
			}
		}
	}
	return clip(b.String(), limit)
}

// closestColumn picks the candidate most similar to name: a fuzzy
// containment match first, then the smallest edit distance within half
// the name length.
func closestColumn(name string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if ranks := fuzzy.RankFindNormalizedFold(name, candidates); len(ranks) > 0 {
		best := ranks[0]
		for _, r := range ranks[1:] {
			if r.Distance < best.Distance {
				best = r
			}
		}
		return best.Target, true
	}

	best, bestDist := "", -1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist <= max(utf8.RuneCountInString(name)/2, 1) {
		return best, true
	}
	return "", false
}

// clip bounds s to limit bytes without splitting a rune.
func clip(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	marker := truncatedMarker
	if limit <= len(marker) {
		marker = ""
	}
	cut := limit - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
