package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/smallnest/graphrag/rag"
)

// VectorStore is an in-memory rag.VectorStore using brute-force cosine search
type VectorStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]rag.VectorRecord
}

// NewVectorStore creates an empty VectorStore for embeddings of dimension elements
func NewVectorStore(dimension int) *VectorStore {
	return &VectorStore{
		dimension: dimension,
		records:   make(map[string]rag.VectorRecord),
	}
}

// Dimension returns the embedding size accepted by the store
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// Upsert inserts or replaces records. Nothing is written if any record has
// the wrong dimension.
func (s *VectorStore) Upsert(_ context.Context, records ...rag.VectorRecord) error {
	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("record %s: %w", r.ID, rag.DimensionError(s.dimension, len(r.Embedding)))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = cloneRecord(r)
	}
	return nil
}

// Query returns the topK records most similar to embedding that match filter
func (s *VectorStore) Query(_ context.Context, embedding []float32, topK int, filter map[string]any) ([]rag.VectorMatch, error) {
	if len(embedding) != s.dimension {
		return nil, rag.DimensionError(s.dimension, len(embedding))
	}
	if topK <= 0 {
		return []rag.VectorMatch{}, nil
	}

	s.mu.RLock()
	matches := make([]rag.VectorMatch, 0, len(s.records))
	for _, r := range s.records {
		if !rag.MatchesFilter(r.Metadata, filter) {
			continue
		}
		matches = append(matches, rag.VectorMatch{
			ID:       r.ID,
			Score:    CosineSimilarity(embedding, r.Embedding),
			Content:  r.Content,
			Metadata: copyMap(r.Metadata),
		})
	}
	s.mu.RUnlock()

	rag.SortMatches(matches)
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes records by id
func (s *VectorStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// Has reports whether a record with id exists
func (s *VectorStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// IDs returns all record ids in sorted order
func (s *VectorStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns a copy of all records ordered by id
func (s *VectorStore) Records() []rag.VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rag.VectorRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the store content with records
func (s *VectorStore) Restore(records []rag.VectorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]rag.VectorRecord, len(records))
	for _, r := range records {
		s.records[r.ID] = cloneRecord(r)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Zero vectors and vectors of different length score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneRecord(r rag.VectorRecord) rag.VectorRecord {
	r.Embedding = append([]float32(nil), r.Embedding...)
	r.Metadata = copyMap(r.Metadata)
	return r
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
