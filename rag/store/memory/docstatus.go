package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/smallnest/graphrag/rag"
)

// DocStatusStore is an in-memory rag.DocStatusStore
type DocStatusStore struct {
	mu   sync.RWMutex
	docs map[string]rag.DocumentStatus
}

// NewDocStatusStore creates an empty DocStatusStore
func NewDocStatusStore() *DocStatusStore {
	return &DocStatusStore{docs: make(map[string]rag.DocumentStatus)}
}

// SetStatus upserts the status record of a document
func (s *DocStatusStore) SetStatus(_ context.Context, status rag.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.ChunkIDs = append([]string(nil), status.ChunkIDs...)
	s.docs[status.ID] = status
	return nil
}

// GetStatus returns the record of id
func (s *DocStatusStore) GetStatus(_ context.Context, id string) (*rag.DocumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.docs[id]
	if !ok {
		return nil, rag.NotFoundError("document", id)
	}
	st.ChunkIDs = append([]string(nil), st.ChunkIDs...)
	return &st, nil
}

// ListByStatus returns every record in status, ordered by id
func (s *DocStatusStore) ListByStatus(_ context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rag.DocumentStatus
	for _, st := range s.docs {
		if st.Status == status {
			st.ChunkIDs = append([]string(nil), st.ChunkIDs...)
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the record of id
func (s *DocStatusStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Snapshot returns a copy of every record
func (s *DocStatusStore) Snapshot() map[string]rag.DocumentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]rag.DocumentStatus, len(s.docs))
	for k, v := range s.docs {
		out[k] = v
	}
	return out
}

// Restore replaces all records with docs
func (s *DocStatusStore) Restore(docs map[string]rag.DocumentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]rag.DocumentStatus, len(docs))
	for k, v := range docs {
		s.docs[k] = v
	}
}
