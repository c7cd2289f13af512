package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/graphrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	kv := NewKVStore(mock, "", rag.NamespaceFullDocs)
	ctx := context.Background()

	t.Run("set", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_kv")).
			WithArgs("default", rag.NamespaceFullDocs, "doc-1", []byte(`{"a":1}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, kv.Set(ctx, "doc-1", []byte(`{"a":1}`)))
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM graphrag_kv WHERE workspace = $1 AND namespace = $2 AND id = $3")).
			WithArgs("default", rag.NamespaceFullDocs, "doc-1").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"a":1}`)))
		v, ok, err := kv.Get(ctx, "doc-1")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, string(v))
	})

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM graphrag_kv")).
			WithArgs("default", rag.NamespaceFullDocs, "nope").
			WillReturnError(pgx.ErrNoRows)
		v, ok, err := kv.Get(ctx, "nope")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("batch get", func(t *testing.T) {
		keys := []string{"a", "b", "c"}
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, value FROM graphrag_kv")).
			WithArgs("default", rag.NamespaceFullDocs, keys).
			WillReturnRows(pgxmock.NewRows([]string{"id", "value"}).
				AddRow("a", []byte(`1`)).
				AddRow("c", []byte(`3`)))
		got, err := kv.BatchGet(ctx, keys)
		assert.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, []byte(`3`), got["c"])
	})

	t.Run("exists", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).
			WithArgs("default", rag.NamespaceFullDocs, "a").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		ok, err := kv.Exists(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM graphrag_kv")).
			WithArgs("default", rag.NamespaceFullDocs, []string{"a", "b"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		assert.NoError(t, kv.Delete(ctx, "a", "b"))
		assert.NoError(t, kv.Delete(ctx))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	kv := NewKVStore(mock, "ws", rag.NamespaceTextChunks)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_kv")).
		WithArgs("ws", rag.NamespaceTextChunks, "k", pgxmock.AnyArg()).
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))
	err = kv.Set(ctx, "k", []byte(`{}`))
	assert.ErrorIs(t, err, rag.ErrStorageUnavailable)
	var se *rag.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "postgres", se.Backend)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_kv")).
		WithArgs("ws", rag.NamespaceTextChunks, "k", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type json"})
	err = kv.Set(ctx, "k", []byte(`{`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, rag.ErrStorageUnavailable)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_kv")).
		WithArgs("ws", rag.NamespaceTextChunks, "k", pgxmock.AnyArg()).
		WillReturnError(context.DeadlineExceeded)
	err = kv.Set(ctx, "k", []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, rag.ErrStorageUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	vs := NewVectorStore(mock, "", rag.NamespaceChunksVDB, 3)
	ctx := context.Background()
	assert.Equal(t, 3, vs.Dimension())

	t.Run("upsert in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_vdb_chunks")).
			WithArgs("default", "c1", "hello", []byte(`{"doc":"d1"}`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_vdb_chunks")).
			WithArgs("default", "c2", "world", []byte(`{}`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := vs.Upsert(ctx,
			rag.VectorRecord{ID: "c1", Content: "hello", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"doc": "d1"}},
			rag.VectorRecord{ID: "c2", Content: "world", Embedding: []float32{0, 1, 0}},
		)
		assert.NoError(t, err)
	})

	t.Run("failed row rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_vdb_chunks")).
			WithArgs("default", "c1", "", []byte(`{}`), pgxmock.AnyArg()).
			WillReturnError(errors.New("broken pipe"))
		mock.ExpectRollback()

		err := vs.Upsert(ctx, rag.VectorRecord{ID: "c1", Embedding: []float32{1, 0, 0}})
		assert.ErrorIs(t, err, rag.ErrStorageUnavailable)
	})

	t.Run("wrong dimension is rejected before the database", func(t *testing.T) {
		err := vs.Upsert(ctx, rag.VectorRecord{ID: "c1", Embedding: []float32{1, 0}})
		assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
		_, err = vs.Query(ctx, []float32{1}, 5, nil)
		assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
	})

	t.Run("query", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, metadata, 1 - (embedding <=> $1) AS score")).
			WithArgs(pgxmock.AnyArg(), "default", []byte(`{"doc":"d1"}`), 2).
			WillReturnRows(pgxmock.NewRows([]string{"id", "content", "metadata", "score"}).
				AddRow("b", "beta", []byte(`{"doc":"d1"}`), 0.5).
				AddRow("a", "alpha", []byte(`{"doc":"d1"}`), 0.5))

		matches, err := vs.Query(ctx, []float32{1, 0, 0}, 2, map[string]any{"doc": "d1"})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "d1", matches[0].Metadata["doc"])
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM graphrag_vdb_chunks WHERE workspace = $1 AND id = ANY($2)")).
			WithArgs("default", []string{"c1"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		assert.NoError(t, vs.Delete(ctx, "c1"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorStoreInitSchema(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		stored  int32
		wantErr error
	}{
		{"matching column", 3, nil},
		{"column of another size", 4, rag.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
				WillReturnResult(pgxmock.NewResult("CREATE", 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT atttypmod FROM pg_attribute")).
				WithArgs("graphrag_vdb_chunks").
				WillReturnRows(pgxmock.NewRows([]string{"atttypmod"}).AddRow(tt.stored))

			err = NewVectorStore(mock, "", rag.NamespaceChunksVDB, 3).InitSchema(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("missing table passes", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT atttypmod FROM pg_attribute")).
			WithArgs("graphrag_vdb_entities").
			WillReturnError(pgx.ErrNoRows)
		assert.NoError(t, NewVectorStore(mock, "", rag.NamespaceEntitiesVDB, 3).CheckDimension(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGraphUpsertEdge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := NewGraph(mock, "")
	ctx := context.Background()

	t.Run("missing endpoint rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM graphrag_graph_nodes")).
			WithArgs("default", []string{"ALICE", "BOB"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("ALICE"))
		mock.ExpectRollback()

		err := g.UpsertEdge(ctx, &rag.Relationship{Source: "BOB", Target: "ALICE", Weight: 1})
		assert.ErrorIs(t, err, rag.ErrMissingEndpoint)
	})

	t.Run("stores the ordered key", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM graphrag_graph_nodes")).
			WithArgs("default", []string{"ALICE", "BOB"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("ALICE").AddRow("BOB"))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_graph_edges")).
			WithArgs("default", "ALICE", "BOB", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := g.UpsertEdge(ctx, &rag.Relationship{Source: "BOB", Target: "ALICE", Weight: 1})
		assert.NoError(t, err)
	})

	t.Run("self loop needs one node", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM graphrag_graph_nodes")).
			WithArgs("default", []string{"ALICE"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("ALICE"))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_graph_edges")).
			WithArgs("default", "ALICE", "ALICE", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		assert.NoError(t, g.UpsertEdge(ctx, &rag.Relationship{Source: "ALICE", Target: "ALICE"}))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphReads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := NewGraph(mock, "ws")
	ctx := context.Background()

	alice, _ := json.Marshal(rag.Entity{Name: "ALICE", Type: "PERSON"})
	edge, _ := json.Marshal(rag.Relationship{Source: "ACME", Target: "ALICE", Weight: 2})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM graphrag_graph_nodes")).
		WithArgs("ws", "ALICE").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(alice))
	e, err := g.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "PERSON", e.Type)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM graphrag_graph_nodes")).
		WithArgs("ws", "NOBODY").
		WillReturnError(pgx.ErrNoRows)
	_, err = g.GetNode(ctx, "NOBODY")
	assert.True(t, rag.IsNotFound(err))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM graphrag_graph_edges")).
		WithArgs("ws", "ACME", "ALICE").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(edge))
	r, err := g.GetEdge(ctx, "ALICE", "ACME")
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.Weight)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM graphrag_graph_edges")).
		WithArgs("ws", "ALICE").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	n, err := g.NodeDegree(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM graphrag_graph_edges")).
		WithArgs("ws", "ALICE").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM graphrag_graph_nodes")).
		WithArgs("ws", "ALICE").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	assert.NoError(t, g.DeleteNode(ctx, "ALICE"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocStatusStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewDocStatusStore(mock, "")
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := rag.DocumentStatus{ID: "doc-1", Status: rag.StatusPending, CreatedAt: now, UpdatedAt: now}
	data, _ := json.Marshal(st)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graphrag_doc_status")).
		WithArgs("default", "doc-1", "pending", data, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SetStatus(ctx, st))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM graphrag_doc_status WHERE workspace = $1 AND status = $2 ORDER BY id")).
		WithArgs("default", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))
	list, err := s.ListByStatus(ctx, rag.StatusPending)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "doc-1", list[0].ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM graphrag_doc_status WHERE workspace = $1 AND id = $2")).
		WithArgs("default", "doc-2").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.GetStatus(ctx, "doc-2")
	assert.True(t, rag.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}
