package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	ref := stmt.NewTable("date", "narration", "withdrawal", "deposit", "balance")
	ref.Append("2024-01-01", "ATM", "500", "", "1500")
	ref.Append("2024-01-02", "SALARY", "", "2000", "3500")
	s, err := schema.Observe(ref)
	require.NoError(t, err)
	return Request{
		Target: "icici",
		Document: stmt.Document{Pages: []stmt.Page{{
			Number: 1,
			Text:   "Date  Narration  Balance\n2024-01-01  ATM  1500",
			Lines:  [][]string{{"Date", "Narration", "Balance"}, {"Statement"}, {"2024-01-01", "ATM", "1500"}},
		}}},
		Schema:      s,
		Reference:   ref,
		Attempt:     1,
		MaxAttempts: 3,
	}
}

func TestExtractSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  package main\n", "package main"},
		{"go fence", "Here:\n```go\npackage main\n```\nDone.", "package main"},
		{"golang fence", "```golang\npackage main\nfunc Parse() {}\n```", "package main\nfunc Parse() {}"},
		{"prefers go", "```text\nlong explanation of what follows\n```\n```go\npackage main\n```", "package main"},
		{"unlabelled longest", "```\na\n```\n```\nlonger\n```", "longer"},
		{"unclosed", "```go\npackage main\nfunc Parse", "package main\nfunc Parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSource(tt.in))
		})
	}
}

func TestRenderPrompt_FirstAttempt(t *testing.T) {
	p, err := RenderPrompt(testRequest(t), PromptOptions{})
	require.NoError(t, err)

	assert.Contains(t, p, `"icici" bank`)
	assert.Contains(t, p, "func Parse(doc stmt.Document) (*stmt.Table, error)")
	assert.Contains(t, p, `"strings"`)
	assert.Contains(t, p, "- withdrawal: numeric, may be empty")
	assert.Contains(t, p, "- narration: text\n")
	assert.Contains(t, p, "2 rows x 5 columns")
	assert.Contains(t, p, "date,narration,withdrawal,deposit,balance\n2024-01-01,ATM,500,,1500\n")
	assert.Contains(t, p, "2024-01-01 | ATM | 1500")
	assert.NotContains(t, p, "| Statement", "single-cell lines are not tabular")
	assert.NotContains(t, p, "previous routine failed")
	assert.NotContains(t, p, "truncated")
}

func TestRenderPrompt_FeedbackAndLimits(t *testing.T) {
	req := testRequest(t)
	req.Attempt = 2
	req.Feedback = "row count expected 2 got 1"
	req.AllowedImports = []string{"strings"}

	p, err := RenderPrompt(req, PromptOptions{ExcerptChars: 10, SampleRows: 1})
	require.NoError(t, err)
	assert.Contains(t, p, "attempt 2 of 3")
	assert.Contains(t, p, "row count expected 2 got 1")
	assert.Contains(t, p, "first 10 characters, truncated")
	assert.Contains(t, p, "First 1 expected rows")
	assert.NotContains(t, p, "SALARY")
	assert.Contains(t, p, `You may import only: "strings" and "stmt".`)
}

type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	calls  int
	prompt string
	model  string
	block  bool
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
	}}}
}

func TestGemini_Generate(t *testing.T) {
	fm := &fakeModels{resp: textResponse("Sure.\n```go\npackage main\n\nfunc Parse() {}\n```")}
	g := newGemini(fm, GeminiConfig{})

	src, err := g.Generate(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc Parse() {}", src)
	assert.Equal(t, 1, fm.calls)
	assert.Equal(t, DefaultModel, fm.model)
	assert.Contains(t, fm.prompt, "Output columns")
}

func TestGemini_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModels
	}{
		{"call error", &fakeModels{err: errors.New("503 overloaded")}},
		{"no candidates", &fakeModels{resp: &genai.GenerateContentResponse{}}},
		{"nil content", &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}}},
		{"blank text", &fakeModels{resp: textResponse("   ")}},
		{"empty fence", &fakeModels{resp: textResponse("```go\n```")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGemini(tt.fm, GeminiConfig{}).Generate(context.Background(), testRequest(t))
			assert.ErrorIs(t, err, ErrGenerationUnavailable)
		})
	}
}

func TestGemini_CallTimeoutIsUnavailable(t *testing.T) {
	fm := &fakeModels{block: true}
	g := newGemini(fm, GeminiConfig{Timeout: 20 * time.Millisecond})

	_, err := g.Generate(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestGemini_CancelledIsContextError(t *testing.T) {
	fm := &fakeModels{block: true}
	g := newGemini(fm, GeminiConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, testRequest(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrGenerationUnavailable))
}

func TestGemini_RateLimited(t *testing.T) {
	fm := &fakeModels{resp: textResponse("package main")}
	g := newGemini(fm, GeminiConfig{RequestsPerMinute: 1})

	_, err := g.Generate(context.Background(), testRequest(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, testRequest(t))
	require.Error(t, err)
	assert.Equal(t, 1, fm.calls, "second call must wait for the limiter")
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"))
}
