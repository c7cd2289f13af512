package mcp

import (
	"context"
	"sync"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/query"
)

type mockService struct {
	mu       sync.Mutex
	answer   string
	queryErr error
	params   []query.Param
	inserted []rag.Document
	docs     map[string]rag.DocumentStatus
	deleted  []string
}

func newMockService() *mockService {
	return &mockService{answer: "forty-two", docs: make(map[string]rag.DocumentStatus)}
}

func (m *mockService) Insert(_ context.Context, docs ...rag.Document) ([]engine.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.InsertResult, len(docs))
	for i, d := range docs {
		if d.Content == "" {
			out[i] = engine.InsertResult{ID: d.ID, Outcome: engine.OutcomeError, Err: engine.ErrEmptyDocument}
			continue
		}
		if d.ID == "" {
			d.ID = rag.DocumentID(d.Content)
		}
		if _, ok := m.docs[d.ID]; ok {
			out[i] = engine.InsertResult{ID: d.ID, Outcome: engine.OutcomeDuplicate}
			continue
		}
		m.inserted = append(m.inserted, d)
		m.docs[d.ID] = rag.DocumentStatus{ID: d.ID, Status: rag.StatusProcessed, ContentLength: len(d.Content)}
		out[i] = engine.InsertResult{ID: d.ID, Outcome: engine.OutcomeAccepted}
	}
	return out, nil
}

func (m *mockService) Query(_ context.Context, _ string, p query.Param) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = append(m.params, p)
	if m.queryErr != nil {
		return "", m.queryErr
	}
	return m.answer, nil
}

func (m *mockService) Status(_ context.Context, id string) (*rag.DocumentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.docs[id]
	if !ok {
		return nil, rag.NotFoundError("document", id)
	}
	return &st, nil
}

func (m *mockService) List(_ context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rag.DocumentStatus
	for _, st := range m.docs {
		if st.Status == status {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *mockService) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return rag.NotFoundError("document", id)
	}
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}
