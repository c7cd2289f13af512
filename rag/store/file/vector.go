package file

import (
	"context"
	"fmt"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/memory"
)

type vectorFile struct {
	Dimension int                `json:"embedding_dim"`
	Records   []rag.VectorRecord `json:"data"`
}

// VectorStore is a rag.VectorStore kept in one JSON file
type VectorStore struct {
	*memory.VectorStore
	p *persister[[]rag.VectorRecord]
}

// OpenVectorStore loads or creates the store at path. An existing file
// written for another dimension is rejected.
func OpenVectorStore(path string, dimension int) (*VectorStore, error) {
	mem := memory.NewVectorStore(dimension)
	var vf vectorFile
	found, err := readJSON(path, &vf)
	if err != nil {
		return nil, err
	}
	if found && vf.Dimension != dimension {
		return nil, fmt.Errorf("%s: %w", path, rag.DimensionError(dimension, vf.Dimension))
	}
	mem.Restore(vf.Records)

	return &VectorStore{
		VectorStore: mem,
		p: &persister[[]rag.VectorRecord]{
			path:     path,
			snapshot: mem.Records,
			restore:  mem.Restore,
			encode: func(r []rag.VectorRecord) any {
				return vectorFile{Dimension: dimension, Records: r}
			},
		},
	}, nil
}

// Upsert inserts or replaces records and flushes the file
func (s *VectorStore) Upsert(ctx context.Context, records ...rag.VectorRecord) error {
	return s.p.mutate("vector.upsert", func() error {
		return s.VectorStore.Upsert(ctx, records...)
	})
}

// Delete removes records and flushes the file
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	return s.p.mutate("vector.delete", func() error {
		return s.VectorStore.Delete(ctx, ids...)
	})
}
