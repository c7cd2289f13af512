package loader

import (
	"context"
	"fmt"
	"maps"
	"os"

	"github.com/smallnest/graphrag/rag"
)

// FileLoader loads one file as one document
type FileLoader struct {
	path     string
	format   Format
	metadata map[string]any
}

// FileOption configures a FileLoader
type FileOption func(*FileLoader)

// WithFormat overrides the format detected from the extension
func WithFormat(f Format) FileOption {
	return func(l *FileLoader) {
		l.format = f
	}
}

// WithMetadata adds metadata to the loaded document
func WithMetadata(metadata map[string]any) FileOption {
	return func(l *FileLoader) {
		maps.Copy(l.metadata, metadata)
	}
}

// NewFileLoader creates a FileLoader for path
func NewFileLoader(path string, opts ...FileOption) *FileLoader {
	l := &FileLoader{
		path:     path,
		format:   DetectFormat(path),
		metadata: make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and converts the file. The document id is left empty so the
// engine derives it from the content.
func (l *FileLoader) Load(ctx context.Context) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.path, err)
	}
	text, err := ToText(data, l.format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", l.path, err)
	}

	metadata := map[string]any{"source": l.path, "format": string(l.format)}
	maps.Copy(metadata, l.metadata)
	return []rag.Document{{Content: text, Metadata: metadata}}, nil
}
