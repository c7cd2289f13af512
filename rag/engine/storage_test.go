package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/store/falkordb"
	"github.com/smallnest/graphrag/rag/store/file"
	"github.com/smallnest/graphrag/rag/store/memory"
	redisstore "github.com/smallnest/graphrag/rag/store/redis"
	"github.com/smallnest/graphrag/rag/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorage_Memory(t *testing.T) {
	s, err := OpenStorage(context.Background(), StorageOptions{Dimension: 4}, Connections{})
	require.NoError(t, err)
	require.NoError(t, s.validate())
	assert.IsType(t, &memory.Graph{}, s.Graph)
	assert.Equal(t, 4, s.ChunkVectors.Dimension())
	assert.NoError(t, s.Close())
}

func TestOpenStorage_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		opts StorageOptions
	}{
		{"no dimension", StorageOptions{}},
		{"unknown kv", StorageOptions{KV: "etcd", Dimension: 4}},
		{"unknown vector", StorageOptions{Vector: "redis", Dimension: 4}},
		{"postgres without pool", StorageOptions{Graph: BackendPostgres, Dimension: 4}},
		{"redis without client", StorageOptions{DocStatus: BackendRedis, Dimension: 4}},
		{"falkordb without connection", StorageOptions{Graph: BackendFalkorDB, Dimension: 4}},
		{"sqlite without db", StorageOptions{KV: BackendSQLite, Dimension: 4}},
		{"file without dir", StorageOptions{KV: BackendFile, Dimension: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenStorage(ctx, tt.opts, Connections{})
			assert.ErrorIs(t, err, rag.ErrInvalidConfig)
		})
	}
}

func TestOpenStorage_File(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := StorageOptions{KV: BackendFile, Vector: BackendFile, Graph: BackendFile, DocStatus: BackendFile, Dir: dir, Workspace: "ws", Dimension: testDimension}

	s, err := OpenStorage(ctx, opts, Connections{})
	require.NoError(t, err)
	e, err := New(testConfig(), s, &fakeModel{}, llm.NewMockEmbedder(testDimension))
	require.NoError(t, err)
	_, err = e.Insert(ctx, rag.Document{ID: "d", Content: aliceText})
	require.NoError(t, err)
	assert.FileExists(t, file.Path(dir, "ws", rag.NamespaceDocStatus))

	// a second process sees the same state
	reopened, err := OpenStorage(ctx, opts, Connections{})
	require.NoError(t, err)
	st, err := reopened.DocStatus.GetStatus(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	alice, err := reopened.Graph.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Len(t, alice.SourceIDs, 3)
}

func TestOpenStorage_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "graphrag.db"))
	require.NoError(t, err)
	defer db.Close()

	s, err := OpenStorage(ctx, StorageOptions{
		KV: BackendSQLite, Vector: BackendSQLite, Graph: BackendSQLite, DocStatus: BackendSQLite,
		Dimension: testDimension,
	}, Connections{SQLite: db})
	require.NoError(t, err)

	e, err := New(testConfig(), s, &fakeModel{}, llm.NewMockEmbedder(testDimension))
	require.NoError(t, err)
	results, err := e.Insert(ctx, rag.Document{ID: "d", Content: aliceText})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)

	alice, err := s.Graph.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Len(t, alice.SourceIDs, 3)

	require.NoError(t, e.DeleteDocument(ctx, "d"))
	_, err = s.Graph.GetNode(ctx, "ALICE")
	assert.ErrorIs(t, err, rag.ErrNotFound)
}

func TestOpenStorage_SQLiteDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "graphrag.db"))
	require.NoError(t, err)
	defer db.Close()

	opts := StorageOptions{Vector: BackendSQLite, Dimension: testDimension}
	s, err := OpenStorage(ctx, opts, Connections{SQLite: db})
	require.NoError(t, err)
	embedding := make([]float32, testDimension)
	embedding[0] = 1
	require.NoError(t, s.ChunkVectors.Upsert(ctx, rag.VectorRecord{ID: "c1", Embedding: embedding}))

	opts.Dimension = testDimension + 1
	_, err = OpenStorage(ctx, opts, Connections{SQLite: db})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	opts.SkipSchema = true
	_, err = OpenStorage(ctx, opts, Connections{SQLite: db})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestOpenStorage_RedisShared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := OpenStorage(ctx, StorageOptions{
		KV: BackendRedis, DocStatus: BackendRedis, Graph: BackendFalkorDB,
		Dimension: testDimension, Workspace: "ws", SkipSchema: true,
		Redis: redisstore.Options{Prefix: "test:"},
	}, Connections{Redis: client})
	require.NoError(t, err)
	assert.IsType(t, &falkordb.Graph{}, s.Graph)

	require.NoError(t, rag.SetJSON(ctx, s.FullDocs, "d", rag.Document{ID: "d", Content: "x"}))
	assert.True(t, mr.Exists("test:ws:"+rag.NamespaceFullDocs+":d"))

	require.NoError(t, s.DocStatus.SetStatus(ctx, rag.DocumentStatus{ID: "d", Status: rag.StatusPending}))
	pending, err := s.DocStatus.ListByStatus(ctx, rag.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
