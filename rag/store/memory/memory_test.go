package memory

import (
	"context"
	"testing"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore(t *testing.T) {
	storetest.KV(t, NewKVStore())
}

func TestDocStatusStore(t *testing.T) {
	storetest.DocStatus(t, NewDocStatusStore())
}

func TestVectorStore(t *testing.T) {
	storetest.Vector(t, NewVectorStore(3))
}

func TestGraph(t *testing.T) {
	storetest.Graph(t, NewGraph())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestGraph_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	require.NoError(t, g.UpsertNode(ctx, &rag.Entity{Name: "A", SourceIDs: []string{"c1"}}))

	n, err := g.GetNode(ctx, "A")
	require.NoError(t, err)
	n.SourceIDs[0] = "mutated"

	again, err := g.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "c1", again.SourceIDs[0])
}

func TestGraph_ExportImport(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	require.NoError(t, g.UpsertNode(ctx, &rag.Entity{Name: "A"}))
	require.NoError(t, g.UpsertNode(ctx, &rag.Entity{Name: "B"}))
	require.NoError(t, g.UpsertEdge(ctx, &rag.Relationship{Source: "A", Target: "B"}))

	data := g.Export()
	data.Edges = append(data.Edges, &rag.Relationship{Source: "A", Target: "GHOST"})

	h := NewGraph()
	h.Import(data)
	assert.Equal(t, []string{"A", "B"}, h.NodeNames())
	assert.Equal(t, []rag.EdgeKey{{Source: "A", Target: "B"}}, h.EdgeKeys())
}

func TestVectorStore_Restore(t *testing.T) {
	ctx := context.Background()
	s := NewVectorStore(2)
	require.NoError(t, s.Upsert(ctx, rag.VectorRecord{ID: "a", Embedding: []float32{1, 0}}))

	snap := s.Records()
	require.NoError(t, s.Upsert(ctx, rag.VectorRecord{ID: "b", Embedding: []float32{0, 1}}))
	s.Restore(snap)
	assert.Equal(t, []string{"a"}, s.IDs())
	assert.False(t, s.Has("b"))
}
