package engine

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/query"
	"github.com/smallnest/graphrag/rag/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceText = "Alice met Bob today . Alice visited Paris again . Alice joined Acme last year"

func TestNew(t *testing.T) {
	model := &fakeModel{}
	embedder := llm.NewMockEmbedder(testDimension)

	t.Run("storage is required", func(t *testing.T) {
		_, err := New(testConfig(), nil, model, embedder)
		assert.ErrorIs(t, err, rag.ErrInvalidConfig)

		s := NewMemoryStorage(testDimension)
		s.Graph = nil
		_, err = New(testConfig(), s, model, embedder)
		assert.ErrorIs(t, err, rag.ErrInvalidConfig)
	})

	t.Run("models are required", func(t *testing.T) {
		_, err := New(testConfig(), NewMemoryStorage(testDimension), nil, embedder)
		assert.ErrorIs(t, err, rag.ErrInvalidConfig)
	})

	t.Run("embedder dimension must match every vector store", func(t *testing.T) {
		s := NewMemoryStorage(testDimension)
		s.RelationshipVectors = memory.NewVectorStore(testDimension + 1)
		_, err := New(testConfig(), s, model, embedder)
		assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
	})

	t.Run("chunking parameters", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChunkOverlapTokenSize = cfg.ChunkTokenSize
		_, err := New(cfg, NewMemoryStorage(testDimension), model, embedder)
		assert.ErrorIs(t, err, rag.ErrInvalidConfig)
	})

	t.Run("concurrency limits", func(t *testing.T) {
		cfg := testConfig()
		cfg.LLMMaxAsync = 0
		_, err := New(cfg, NewMemoryStorage(testDimension), model, embedder)
		assert.ErrorIs(t, err, rag.ErrInvalidConfig)
	})
}

func TestInsert_AliceProvenance(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, testConfig(), &fakeModel{})

	results, err := e.Insert(ctx, rag.Document{ID: "doc-alice", Content: aliceText})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	assert.NoError(t, results[0].Err)

	st, err := e.Status(ctx, "doc-alice")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	assert.Equal(t, 3, st.ChunksCount)
	assert.Zero(t, st.FailedChunks)

	alice, err := s.Graph.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	want := append([]string(nil), st.ChunkIDs...)
	sort.Strings(want)
	assert.Equal(t, want, alice.SourceIDs)
	assert.Equal(t, "PERSON", alice.Type)
	assert.Len(t, alice.Mentions, 3)

	for _, other := range []string{"BOB", "PARIS", "ACME"} {
		n, err := s.Graph.NodeDegree(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, 1, n, other)
		_, err = s.Graph.GetEdge(ctx, other, "ALICE")
		assert.NoError(t, err, other)
	}
	assertConsistent(t, s)
}

func TestInsert_ReingestIsNoop(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e, s := newTestEngine(t, testConfig(), model)

	_, err := e.Insert(ctx, rag.Document{Content: aliceText})
	require.NoError(t, err)
	calls := model.calls.Load()
	nodes := s.Graph.(*memory.Graph).Export()
	vectors := s.EntityVectors.(*memory.VectorStore).Records()

	results, err := e.Insert(ctx, rag.Document{Content: "  " + aliceText + "\n"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, results[0].Outcome)
	assert.Equal(t, rag.DocumentID(aliceText), results[0].ID)
	assert.Equal(t, calls, model.calls.Load())
	assert.Equal(t, nodes, s.Graph.(*memory.Graph).Export())
	assert.Equal(t, vectors, s.EntityVectors.(*memory.VectorStore).Records())
}

func TestInsert_Outcomes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, testConfig(), &fakeModel{})

	results, err := e.Insert(ctx,
		rag.Document{ID: "a", Content: "Alice works"},
		rag.Document{ID: "a", Content: "Alice works"},
		rag.Document{ID: "empty", Content: "   "},
		rag.Document{ID: "b", Content: "Bob works"},
	)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	assert.Equal(t, OutcomeDuplicate, results[1].Outcome)
	assert.Equal(t, OutcomeError, results[2].Outcome)
	assert.ErrorIs(t, results[2].Err, ErrEmptyDocument)
	assert.Equal(t, OutcomeAccepted, results[3].Outcome)
	assert.Equal(t, "b", results[3].ID)
}

func TestInsert_FailedChunksAreCounted(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e, s := newTestEngine(t, testConfig(), model)

	results, err := e.Insert(ctx, rag.Document{ID: "d", Content: "Alice met Bob today . GARBAGE GARBAGE GARBAGE GARBAGE GARBAGE"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)

	st, err := e.Status(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	assert.Equal(t, 2, st.ChunksCount)
	assert.Equal(t, 1, st.FailedChunks)

	// one call for the good chunk, three for the bad one
	assert.EqualValues(t, 4, model.calls.Load())
	_, err = s.Graph.GetNode(ctx, "ALICE")
	assert.NoError(t, err)
	assertConsistent(t, s)
}

func TestInsert_ModelFailureIsolatesDocuments(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	cfg := testConfig()
	cfg.MaxParallelInsert = 1
	e, s := newTestEngine(t, cfg, model)

	model.fail.Store(true)
	results, err := e.Insert(ctx, rag.Document{ID: "bad", Content: "Alice works"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, rag.ErrModelCall)

	st, err := e.Status(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusFailed, st.Status)
	assert.NotEmpty(t, st.Error)

	model.fail.Store(false)
	results, err = e.Insert(ctx, rag.Document{ID: "good", Content: "Bob works"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)

	// failed documents are only retried on request
	resumed, err := e.Resume(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, resumed)

	resumed, err = e.Resume(ctx, true)
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, OutcomeAccepted, resumed[0].Outcome)

	st, err = e.Status(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	assert.Empty(t, st.Error)
	assertConsistent(t, s)
}

func TestEnqueueAndResume(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e, s := newTestEngine(t, testConfig(), model)

	results, err := e.Enqueue(ctx, rag.Document{ID: "p1", Content: "Alice works"}, rag.Document{ID: "p2", Content: "Bob works"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	assert.Zero(t, model.calls.Load())

	pending, err := e.List(ctx, rag.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// a document interrupted mid-pipeline is picked up again
	require.NoError(t, rag.SetJSON(ctx, s.FullDocs, "p3", rag.Document{ID: "p3", Content: "Carol works"}))
	require.NoError(t, s.DocStatus.SetStatus(ctx, rag.DocumentStatus{ID: "p3", Status: rag.StatusExtracting}))

	processed, err := e.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Len(t, processed, 3)
	for _, id := range []string{"p1", "p2", "p3"} {
		st, err := e.Status(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, rag.StatusProcessed, st.Status, id)
	}
	_, err = s.Graph.GetNode(ctx, "CAROL")
	assert.NoError(t, err)
}

func TestProcess_CancelledContextKeepsStatus(t *testing.T) {
	model := &fakeModel{}
	e, _ := newTestEngine(t, testConfig(), model)

	_, err := e.Enqueue(context.Background(), rag.Document{ID: "c", Content: "Alice works"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ProcessPending(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	st, err := e.Status(context.Background(), "c")
	require.NoError(t, err)
	assert.False(t, st.Status.Terminal(), st.Status)

	_, err = e.ProcessPending(context.Background())
	require.NoError(t, err)
	st, err = e.Status(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
}

func TestInsert_ConcurrencyPeak(t *testing.T) {
	model := &fakeModel{delay: 5 * time.Millisecond}
	cfg := testConfig()
	cfg.LLMMaxAsync = 3
	cfg.MaxParallelInsert = 10
	e, _ := newTestEngine(t, cfg, model)

	docs := make([]rag.Document, 10)
	for i := range docs {
		docs[i] = rag.Document{Content: fmt.Sprintf("Alice met Bob %d . Carol visited Paris %d", i, i)}
	}
	results, err := e.Insert(context.Background(), docs...)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, OutcomeAccepted, r.Outcome)
	}

	assert.LessOrEqual(t, model.peak.Load(), int32(3))
	assert.LessOrEqual(t, e.LLMGate().Peak(), 3)
	assert.Positive(t, e.LLMGate().Peak())
	assert.Zero(t, e.LLMGate().InFlight())
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, testConfig(), &fakeModel{})

	_, err := e.Insert(ctx,
		rag.Document{ID: "keep", Content: "Alice met Bob today ."},
		rag.Document{ID: "drop", Content: "Alice visited Paris again ."},
	)
	require.NoError(t, err)
	assertConsistent(t, s)

	require.NoError(t, e.DeleteDocument(ctx, "drop"))
	assertConsistent(t, s)

	_, err = s.Graph.GetNode(ctx, "PARIS")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	alice, err := s.Graph.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Len(t, alice.SourceIDs, 1)
	_, err = s.Graph.GetEdge(ctx, "ALICE", "BOB")
	assert.NoError(t, err)

	_, err = e.Status(ctx, "drop")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	ok, err := s.FullDocs.Exists(ctx, "drop")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, e.DeleteDocument(ctx, "drop"), rag.ErrNotFound)

	// the document can be ingested again after deletion
	results, err := e.Insert(ctx, rag.Document{ID: "drop", Content: "Alice visited Paris again ."})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, results[0].Outcome)
	_, err = s.Graph.GetNode(ctx, "PARIS")
	assert.NoError(t, err)
}

func TestRetry_ReplacesStaleChunks(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e, s := newTestEngine(t, testConfig(), model)

	model.fail.Store(true)
	_, err := e.Insert(ctx, rag.Document{ID: "d", Content: "Alice met Bob today . Alice visited Paris again ."})
	require.NoError(t, err)
	st, err := e.Status(ctx, "d")
	require.NoError(t, err)
	require.Equal(t, rag.StatusFailed, st.Status)
	old := st.ChunkIDs
	require.Len(t, old, 2)

	model.fail.Store(false)
	_, err = e.Insert(ctx, rag.Document{ID: "d", Content: "Carol joined Acme last year"})
	require.NoError(t, err)

	st, err = e.Status(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, rag.StatusProcessed, st.Status)
	assert.Len(t, st.ChunkIDs, 1)
	for _, id := range old {
		ok, err := s.TextChunks.Exists(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
	_, err = s.Graph.GetNode(ctx, "ALICE")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	assertConsistent(t, s)
}

func TestEngine_Query(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, testConfig(), &fakeModel{})

	answer, err := e.Query(ctx, "Who is Alice?", query.Param{Mode: query.ModeLocal})
	require.NoError(t, err)
	assert.Equal(t, query.FailResponse, answer)

	_, err = e.Insert(ctx, rag.Document{Content: aliceText})
	require.NoError(t, err)

	for _, mode := range query.Modes {
		answer, err := e.Query(ctx, "Alice", query.Param{Mode: mode})
		require.NoError(t, err, mode)
		assert.Equal(t, "fake answer", answer, mode)
	}

	qc, err := e.BuildContext(ctx, "Alice", query.Param{Mode: query.ModeNaive, ChunkTopK: 2})
	require.NoError(t, err)
	assert.Len(t, qc.Sources, 2)
}
