package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// modelAPI is the part of genai.Models the client uses.
type modelAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Timeout           time.Duration // per call
	RequestsPerMinute int           // 0 disables limiting
	Temperature       float32
	Prompt            PromptOptions
	Logger            *zap.Logger
}

// Gemini generates routines with the Gemini API.
type Gemini struct {
	models  modelAPI
	cfg     GeminiConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGemini creates a Gemini client for cfg.APIKey.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models modelAPI, cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	g := &Gemini{models: models, cfg: cfg, logger: cfg.Logger}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return g
}

// Generate renders the prompt for req, calls the model once and extracts
// the routine source from the reply.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := RenderPrompt(req, g.cfg.Prompt)
	if err != nil {
		return "", err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: rate limit: %v", ErrGenerationUnavailable, err)
		}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(callCtx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.cfg.Temperature),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	source := ExtractSource(text)
	if source == "" {
		return "", fmt.Errorf("%w: response contained no source", ErrGenerationUnavailable)
	}

	g.logger.Debug("generation complete",
		zap.String("model", g.cfg.Model),
		zap.Int("attempt", req.Attempt),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("source_bytes", len(source)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return source, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: %s", ErrGenerationUnavailable, reason)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty candidate (finish reason %s)", ErrGenerationUnavailable, cand.FinishReason)
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: empty response (finish reason %s)", ErrGenerationUnavailable, cand.FinishReason)
	}
	return b.String(), nil
}
