// Package generate asks a code-generation model for candidate parsing
// routines.
package generate

import (
	"context"
	"errors"

	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/stmt"
)

// ErrGenerationUnavailable is returned when the generation call fails
// outright or yields no usable source.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// Client produces candidate routine source for a request.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is everything the model sees for one attempt.
type Request struct {
	Target         string
	Document       stmt.Document
	Schema         schema.Schema
	Reference      *stmt.Table
	Attempt        int // 1-based
	MaxAttempts    int
	AllowedImports []string
	// Feedback describes the previous attempt's failure; empty on the
	// first attempt.
	Feedback string
}
