// Package storetest holds behavior tests shared by every storage backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/smallnest/graphrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// KV exercises a rag.KVStore
func KV(t *testing.T, kv rag.KVStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := kv.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)

		exists, err := kv.Exists(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("set is an upsert", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "k1", []byte(`{"v":1}`)))
		require.NoError(t, kv.Set(ctx, "k1", []byte(`{"v":2}`)))

		v, ok, err := kv.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"v":2}`, string(v))
	})

	t.Run("batch get skips missing keys", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "k2", []byte(`"two"`)))
		got, err := kv.BatchGet(ctx, []string{"k1", "k2", "nope"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.JSONEq(t, `"two"`, string(got["k2"]))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Delete(ctx, "k1", "k2", "nope"))
		exists, err := kv.Exists(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

// DocStatus exercises a rag.DocStatusStore
func DocStatus(t *testing.T, s rag.DocStatusStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.GetStatus(ctx, "doc-missing")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	require.NoError(t, s.SetStatus(ctx, rag.DocumentStatus{ID: "doc-a", Status: rag.StatusPending, ContentLength: 5, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.SetStatus(ctx, rag.DocumentStatus{ID: "doc-b", Status: rag.StatusPending, CreatedAt: now, UpdatedAt: now}))

	pending, err := s.ListByStatus(ctx, rag.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.SetStatus(ctx, rag.DocumentStatus{
		ID: "doc-a", Status: rag.StatusProcessed, ContentLength: 5, ChunksCount: 1,
		ChunkIDs: []string{"chunk-1"}, CreatedAt: now, UpdatedAt: now,
	}))

	st, err := s.GetStatus(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	assert.Equal(t, []string{"chunk-1"}, st.ChunkIDs)
	assert.Equal(t, 5, st.ContentLength)

	pending, err = s.ListByStatus(ctx, rag.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "doc-b", pending[0].ID)

	processed, err := s.ListByStatus(ctx, rag.StatusProcessed)
	require.NoError(t, err)
	assert.Len(t, processed, 1)

	require.NoError(t, s.Delete(ctx, "doc-a"))
	require.NoError(t, s.Delete(ctx, "doc-a"))
	_, err = s.GetStatus(ctx, "doc-a")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	processed, err = s.ListByStatus(ctx, rag.StatusProcessed)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

// Vector exercises a rag.VectorStore of dimension 3
func Vector(t *testing.T, s rag.VectorStore) {
	t.Helper()
	ctx := context.Background()
	require.Equal(t, 3, s.Dimension())

	err := s.Upsert(ctx, rag.VectorRecord{ID: "bad", Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	require.NoError(t, s.Upsert(ctx,
		rag.VectorRecord{ID: "x", Embedding: []float32{1, 0, 0}, Content: "x", Metadata: map[string]any{"doc": "d1"}},
		rag.VectorRecord{ID: "y", Embedding: []float32{0.9, 0.1, 0}, Content: "y", Metadata: map[string]any{"doc": "d2"}},
		rag.VectorRecord{ID: "z", Embedding: []float32{0, 0, 1}, Content: "z", Metadata: map[string]any{"doc": "d1"}},
	))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "x", matches[0].ID)
	assert.Equal(t, "y", matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	filtered, err := s.Query(ctx, []float32{1, 0, 0}, 5, map[string]any{"doc": "d1"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "x", filtered[0].ID)
	assert.Equal(t, "z", filtered[1].ID)

	_, err = s.Query(ctx, []float32{1}, 1, nil)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	require.NoError(t, s.Delete(ctx, "x", "missing"))
	matches, err = s.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "y", matches[0].ID)
}

// Graph exercises a rag.GraphStore
func Graph(t *testing.T, g rag.GraphStore) {
	t.Helper()
	ctx := context.Background()

	alice := &rag.Entity{Name: "ALICE", Type: "PERSON", Description: "an engineer", SourceIDs: []string{"c1"}}
	bob := &rag.Entity{Name: "BOB", Type: "PERSON", Description: "a manager", SourceIDs: []string{"c1"}}
	acme := &rag.Entity{Name: "ACME", Type: "ORGANIZATION", Description: "a company", SourceIDs: []string{"c2"}}

	_, err := g.GetNode(ctx, "ALICE")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	err = g.UpsertEdge(ctx, &rag.Relationship{Source: "ALICE", Target: "BOB", Weight: 1})
	assert.ErrorIs(t, err, rag.ErrMissingEndpoint)

	for _, e := range []*rag.Entity{alice, bob, acme} {
		require.NoError(t, g.UpsertNode(ctx, e))
	}
	require.NoError(t, g.UpsertEdge(ctx, &rag.Relationship{Source: "BOB", Target: "ALICE", Description: "works with", Weight: 2, SourceIDs: []string{"c1"}}))
	require.NoError(t, g.UpsertEdge(ctx, &rag.Relationship{Source: "BOB", Target: "ACME", Description: "employed by", Weight: 1, SourceIDs: []string{"c2"}}))

	got, err := g.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "PERSON", got.Type)
	assert.Equal(t, []string{"c1"}, got.SourceIDs)

	edge, err := g.GetEdge(ctx, "ALICE", "BOB")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", edge.Source)
	assert.Equal(t, "BOB", edge.Target)
	assert.Equal(t, 2.0, edge.Weight)

	edge, err = g.GetEdge(ctx, "BOB", "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "works with", edge.Description)

	deg, err := g.NodeDegree(ctx, "BOB")
	require.NoError(t, err)
	assert.Equal(t, 2, deg)

	edges, err := g.GetEdges(ctx, "BOB")
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	nodes, rels, err := g.Neighborhood(ctx, "ALICE", 2)
	require.NoError(t, err)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t, []string{"BOB", "ACME"}, names)
	assert.Len(t, rels, 2)

	nodes, _, err = g.Neighborhood(ctx, "ALICE", 1)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	require.NoError(t, g.DeleteEdge(ctx, "ALICE", "BOB"))
	_, err = g.GetEdge(ctx, "ALICE", "BOB")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	require.NoError(t, g.DeleteNode(ctx, "BOB"))
	_, err = g.GetNode(ctx, "BOB")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	_, err = g.GetEdge(ctx, "BOB", "ACME")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	deg, err = g.NodeDegree(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, 0, deg)
}
