package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContracts(t *testing.T) {
	dir := t.TempDir()

	kv, err := OpenKVStore(Path(dir, "", rag.NamespaceFullDocs))
	require.NoError(t, err)
	storetest.KV(t, kv)

	ds, err := OpenDocStatusStore(Path(dir, "", rag.NamespaceDocStatus))
	require.NoError(t, err)
	storetest.DocStatus(t, ds)

	vs, err := OpenVectorStore(Path(dir, "", rag.NamespaceChunksVDB), 3)
	require.NoError(t, err)
	storetest.Vector(t, vs)

	g, err := OpenGraph(Path(dir, "", rag.NamespaceGraph))
	require.NoError(t, err)
	storetest.Graph(t, g)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := OpenKVStore(Path(dir, "ws", "kv"))
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "a", []byte(`{"x":1}`)))

	g, err := OpenGraph(Path(dir, "ws", "graph"))
	require.NoError(t, err)
	require.NoError(t, g.UpsertNode(ctx, &rag.Entity{Name: "A"}))
	require.NoError(t, g.UpsertNode(ctx, &rag.Entity{Name: "B"}))
	require.NoError(t, g.UpsertEdge(ctx, &rag.Relationship{Source: "A", Target: "B", Weight: 3}))

	vs, err := OpenVectorStore(Path(dir, "ws", "vec"), 2)
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(ctx, rag.VectorRecord{ID: "v", Embedding: []float32{1, 0}}))

	kv2, err := OpenKVStore(Path(dir, "ws", "kv"))
	require.NoError(t, err)
	v, ok, err := kv2.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(v))

	g2, err := OpenGraph(Path(dir, "ws", "graph"))
	require.NoError(t, err)
	edge, err := g2.GetEdge(ctx, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 3.0, edge.Weight)

	vs2, err := OpenVectorStore(Path(dir, "ws", "vec"), 2)
	require.NoError(t, err)
	assert.True(t, vs2.Has("v"))

	_, err = OpenVectorStore(Path(dir, "ws", "vec"), 4)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestFailedFlushRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")

	kv, err := OpenKVStore(filepath.Join(blocker, "kv.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	err = kv.Set(ctx, "a", []byte(`1`))
	assert.ErrorIs(t, err, rag.ErrStorageUnavailable)

	_, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
