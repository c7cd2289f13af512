// Package file persists the rag storage contracts as JSON files in a
// working directory. Every mutation rewrites its file atomically before
// returning; when the write fails the in-memory state is rolled back.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smallnest/graphrag/rag"
)

const backend = "file"

// Path returns the file used for namespace in workspace under dir
func Path(dir, workspace, namespace string) string {
	if workspace == "" {
		workspace = rag.DefaultWorkspace
	}
	return filepath.Join(dir, workspace, fmt.Sprintf("%s.json", namespace))
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, rag.Unavailable(backend, "read", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// persister serializes mutations of one in-memory store and flushes it
type persister[S any] struct {
	mu       sync.Mutex
	path     string
	snapshot func() S
	restore  func(S)
	encode   func(S) any
}

func (p *persister[S]) mutate(op string, fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := writeJSONAtomic(p.path, p.encode(p.snapshot())); err != nil {
		p.restore(prev)
		return rag.Unavailable(backend, op, err)
	}
	return nil
}
