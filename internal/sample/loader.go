// Package sample loads the sample statement and reference table of a
// target.
package sample

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/stmt"
	"github.com/cleared-dev/parsergen/internal/target"
)

// ErrSourceUnavailable is returned when a sample file is missing,
// unreadable or malformed.
var ErrSourceUnavailable = errors.New("sample source unavailable")

// Sample is the loaded input of one run. It is never mutated after Load.
type Sample struct {
	Target    target.Target
	Document  stmt.Document
	Reference *stmt.Table
}

// DocumentReader extracts a statement document from a file.
type DocumentReader interface {
	ReadDocument(ctx context.Context, path string) (stmt.Document, error)
}

// Loader reads samples, choosing a DocumentReader by file extension.
type Loader struct {
	readers map[string]DocumentReader
	logger  *zap.Logger
}

// NewLoader returns a Loader that reads .pdf and .txt documents.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		readers: map[string]DocumentReader{
			".pdf": PDFReader{},
			".txt": TextReader{},
		},
		logger: logger,
	}
}

// Register sets the reader for a file extension such as ".pdf".
func (l *Loader) Register(ext string, r DocumentReader) {
	l.readers[strings.ToLower(ext)] = r
}

// Load reads the document and reference table of t.
func (l *Loader) Load(ctx context.Context, t target.Target) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(t.DocumentPath))
	reader, ok := l.readers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unsupported document type %q", ErrSourceUnavailable, t.DocumentPath, ext)
	}
	if err := checkFile(t.DocumentPath); err != nil {
		return nil, err
	}
	doc, err := reader.ReadDocument(ctx, t.DocumentPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, t.DocumentPath, err)
	}
	if strings.TrimSpace(doc.Text()) == "" {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrSourceUnavailable, t.DocumentPath)
	}

	if err := checkFile(t.ReferencePath); err != nil {
		return nil, err
	}
	ref, err := ReadReference(t.ReferencePath)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("sample loaded",
		zap.String("target", t.Name),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("reference_rows", ref.Len()),
		zap.Strings("columns", ref.Columns),
	)
	return &Sample{Target: t, Document: doc, Reference: ref}, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}
	return nil
}
