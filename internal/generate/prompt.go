package generate

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/cleared-dev/parsergen/internal/sample"
	"github.com/cleared-dev/parsergen/internal/sandbox"
	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
)

//go:embed prompt.tmpl
var promptText string

var promptTmpl = template.Must(template.New("prompt").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(promptText))

// Prompt defaults.
const (
	DefaultExcerptChars = 2000
	DefaultSampleRows   = 10
	DefaultTabularLines = 40
)

// PromptOptions bounds how much of the inputs goes into a prompt.
type PromptOptions struct {
	ExcerptChars int
	SampleRows   int
	TabularLines int
}

func (o PromptOptions) withDefaults() PromptOptions {
	if o.ExcerptChars <= 0 {
		o.ExcerptChars = DefaultExcerptChars
	}
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
	if o.TabularLines <= 0 {
		o.TabularLines = DefaultTabularLines
	}
	return o
}

type promptData struct {
	Target         string
	Signature      string
	AllowedImports []string
	Columns        []schema.Column
	Rows           int
	SampleCount    int
	SampleCSV      string
	ExcerptChars   int
	Excerpt        string
	Truncated      bool
	Lines          []string
	Attempt        int
	MaxAttempts    int
	Feedback       string
}

// RenderPrompt builds the model prompt for req.
func RenderPrompt(req Request, opts PromptOptions) (string, error) {
	opts = opts.withDefaults()

	excerpt, truncated := truncateRunes(req.Document.Text(), opts.ExcerptChars)
	sampleTable := headRows(req.Reference, opts.SampleRows)
	var csvBuf bytes.Buffer
	if err := sample.WriteTable(&csvBuf, sampleTable); err != nil {
		return "", fmt.Errorf("rendering sample rows: %w", err)
	}

	var lines []string
	for _, cells := range req.Document.Lines() {
		if len(lines) == opts.TabularLines {
			break
		}
		if len(cells) > 1 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}

	allowed := req.AllowedImports
	if allowed == nil {
		allowed = sandbox.DefaultAllowedImports
	}
	quoted := make([]string, len(allowed))
	for i, p := range allowed {
		quoted[i] = fmt.Sprintf("%q", p)
	}

	data := promptData{
		Target:         req.Target,
		Signature:      sandbox.EntrySignature,
		AllowedImports: quoted,
		Columns:        req.Schema.Columns,
		Rows:           req.Reference.Len(),
		SampleCount:    sampleTable.Len(),
		SampleCSV:      csvBuf.String(),
		ExcerptChars:   opts.ExcerptChars,
		Excerpt:        excerpt,
		Truncated:      truncated,
		Lines:          lines,
		Attempt:        req.Attempt,
		MaxAttempts:    req.MaxAttempts,
		Feedback:       req.Feedback,
	}
	var out bytes.Buffer
	if err := promptTmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return out.String(), nil
}

func truncateRunes(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}

func headRows(t *stmt.Table, n int) *stmt.Table {
	head := &stmt.Table{}
	if t == nil {
		return head
	}
	head.Columns = t.Columns
	if len(t.Rows) > n {
		head.Rows = t.Rows[:n]
	} else {
		head.Rows = t.Rows
	}
	return head
}
