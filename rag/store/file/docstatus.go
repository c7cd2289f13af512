package file

import (
	"context"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/memory"
)

// DocStatusStore is a rag.DocStatusStore kept in one JSON file
type DocStatusStore struct {
	*memory.DocStatusStore
	p *persister[map[string]rag.DocumentStatus]
}

// OpenDocStatusStore loads or creates the store at path
func OpenDocStatusStore(path string) (*DocStatusStore, error) {
	mem := memory.NewDocStatusStore()
	var docs map[string]rag.DocumentStatus
	if _, err := readJSON(path, &docs); err != nil {
		return nil, err
	}
	mem.Restore(docs)

	return &DocStatusStore{
		DocStatusStore: mem,
		p: &persister[map[string]rag.DocumentStatus]{
			path:     path,
			snapshot: mem.Snapshot,
			restore:  mem.Restore,
			encode:   func(d map[string]rag.DocumentStatus) any { return d },
		},
	}, nil
}

// SetStatus upserts the record and flushes the file
func (s *DocStatusStore) SetStatus(ctx context.Context, status rag.DocumentStatus) error {
	return s.p.mutate("doc_status.set", func() error {
		return s.DocStatusStore.SetStatus(ctx, status)
	})
}

// Delete removes the record and flushes the file
func (s *DocStatusStore) Delete(ctx context.Context, id string) error {
	return s.p.mutate("doc_status.delete", func() error {
		return s.DocStatusStore.Delete(ctx, id)
	})
}
