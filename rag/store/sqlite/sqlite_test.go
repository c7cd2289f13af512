package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "graphrag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, InitSchema(context.Background(), db))
	return db
}

func TestStores(t *testing.T) {
	db := openDB(t)

	t.Run("kv", func(t *testing.T) { storetest.KV(t, NewKVStore(db, "", rag.NamespaceFullDocs)) })
	t.Run("vector", func(t *testing.T) { storetest.Vector(t, NewVectorStore(db, "", rag.NamespaceChunksVDB, 3)) })
	t.Run("graph", func(t *testing.T) { storetest.Graph(t, NewGraph(db, "")) })
	t.Run("doc status", func(t *testing.T) { storetest.DocStatus(t, NewDocStatusStore(db, "")) })
}

func TestNamespacesAreIsolated(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	docs := NewKVStore(db, "ws", rag.NamespaceFullDocs)
	chunks := NewKVStore(db, "ws", rag.NamespaceTextChunks)
	require.NoError(t, docs.Set(ctx, "k", []byte(`1`)))

	ok, err := chunks.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	entities := NewVectorStore(db, "ws", rag.NamespaceEntitiesVDB, 2)
	relations := NewVectorStore(db, "ws", rag.NamespaceRelationshipsVDB, 2)
	require.NoError(t, entities.Upsert(ctx, rag.VectorRecord{ID: "e", Embedding: []float32{1, 0}}))
	got, err := relations.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphrag.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, InitSchema(ctx, db))
	require.NoError(t, NewKVStore(db, "", rag.NamespaceFullDocs).Set(ctx, "doc-1", []byte(`"x"`)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, InitSchema(ctx, db))
	v, ok, err := NewKVStore(db, "", rag.NamespaceFullDocs).Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"x"`, string(v))
}

func TestVectorDimensionMismatch(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	stored := NewVectorStore(db, "", rag.NamespaceChunksVDB, 3)
	require.NoError(t, stored.CheckDimension(ctx))
	require.NoError(t, stored.Upsert(ctx, rag.VectorRecord{ID: "c1", Content: "alpha", Embedding: []float32{1, 0, 0}}))
	require.NoError(t, stored.CheckDimension(ctx))

	reopened := NewVectorStore(db, "", rag.NamespaceChunksVDB, 4)
	assert.ErrorIs(t, reopened.CheckDimension(ctx), rag.ErrDimensionMismatch)

	matches, err := reopened.Query(ctx, []float32{1, 0, 0, 0}, 5, nil)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
	assert.Empty(t, matches)

	other := NewVectorStore(db, "", rag.NamespaceEntitiesVDB, 4)
	assert.NoError(t, other.CheckDimension(ctx))
}
