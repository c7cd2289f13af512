package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// DefaultExtensions are the files a DirLoader picks up
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".html", ".htm"}

// DirLoader loads every matching file below a directory, in path order
type DirLoader struct {
	root       string
	extensions map[string]bool
	recursive  bool
	opts       []FileOption
}

// DirOption configures a DirLoader
type DirOption func(*DirLoader)

// WithExtensions replaces the accepted file extensions
func WithExtensions(exts ...string) DirOption {
	return func(l *DirLoader) {
		l.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			l.extensions[strings.ToLower(e)] = true
		}
	}
}

// WithRecursive descends into subdirectories
func WithRecursive(recursive bool) DirOption {
	return func(l *DirLoader) {
		l.recursive = recursive
	}
}

// WithFileOptions applies opts to every file
func WithFileOptions(opts ...FileOption) DirOption {
	return func(l *DirLoader) {
		l.opts = append(l.opts, opts...)
	}
}

// NewDirLoader creates a DirLoader for root
func NewDirLoader(root string, opts ...DirOption) *DirLoader {
	l := &DirLoader{root: root}
	WithExtensions(DefaultExtensions...)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Files lists the files Load would read
func (l *DirLoader) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.root && (!l.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if l.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", l.root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every file; files without text are skipped
func (l *DirLoader) Load(ctx context.Context) ([]rag.Document, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	var docs []rag.Document
	for _, f := range files {
		loaded, err := NewFileLoader(f, l.opts...).Load(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range loaded {
			if strings.TrimSpace(d.Content) != "" {
				docs = append(docs, d)
			}
		}
	}
	return docs, nil
}

// Static returns docs as they are
type Static []rag.Document

// Load implements Loader
func (s Static) Load(context.Context) ([]rag.Document, error) {
	return s, nil
}
