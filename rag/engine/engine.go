package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/cache"
	"github.com/smallnest/graphrag/rag/extract"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/query"
	"github.com/smallnest/graphrag/rag/splitter"
)

// ErrEmptyDocument is reported for documents without content
var ErrEmptyDocument = errors.New("empty document")

// Outcome is the result of submitting one document
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// InsertResult reports what happened to one submitted document
type InsertResult struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

// Engine ingests documents into the knowledge graph and answers queries over it
type Engine struct {
	cfg       Config
	store     *Storage
	llmGate   *llm.Gate
	embedGate *llm.Gate
	embedder  rag.Embedder
	tok       splitter.Tokenizer
	chunker   *splitter.TokenChunker
	extractor *extract.Extractor
	indexer   *extract.Indexer
	query     *query.Engine
	docLocks  *extract.KeyLock
	logger    log.Logger
	now       func() time.Time
}

// New validates the configuration and the stores and wires the pipeline.
// Completion and embedding calls go through admission gates sized by
// LLMMaxAsync and EmbeddingMaxAsync, then through the retry policy.
func New(cfg Config, storage *Storage, model rag.LLM, embedder rag.Embedder) (*Engine, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: storage is required", rag.ErrInvalidConfig)
	}
	if err := storage.validate(); err != nil {
		return nil, err
	}
	if model == nil || embedder == nil {
		return nil, fmt.Errorf("%w: llm and embedder are required", rag.ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dim := embedder.GetDimension()
	for _, vs := range []rag.VectorStore{storage.ChunkVectors, storage.EntityVectors, storage.RelationshipVectors} {
		if vs.Dimension() != dim {
			return nil, rag.DimensionError(vs.Dimension(), dim)
		}
	}

	tok, err := cfg.tokenizer()
	if err != nil {
		return nil, err
	}
	chunker, err := splitter.NewTokenChunker(
		splitter.WithChunkSize(cfg.ChunkTokenSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlapTokenSize),
		splitter.WithTokenizer(tok),
	)
	if err != nil {
		return nil, err
	}

	logger := log.OrDefault(cfg.Logger)
	llmGate := llm.NewGate(cfg.LLMMaxAsync, cfg.LLMRequestsPerSecond)
	embedGate := llm.NewGate(cfg.EmbeddingMaxAsync, 0)
	retry := cfg.Retry
	if retry.Logger == nil {
		retry.Logger = logger
	}
	gatedLLM := llm.WithRetry(llmGate.LLM(model), retry)
	gatedEmbedder := llm.WithEmbedderRetry(embedGate.Embedder(embedder), retry)

	var c cache.Cache
	switch {
	case !cfg.EnableLLMCache:
	case storage.LLMCache != nil:
		c = cache.NewKVCache(storage.LLMCache, cfg.CacheTTL)
	case cfg.CacheSize > 0:
		c = cache.NewLRU(cfg.CacheSize)
	}
	c = cache.WithLogger(c, logger)

	extractor := extract.NewExtractor(gatedLLM, c, extract.Config{
		EntityTypes:     cfg.EntityTypes,
		Language:        cfg.Language,
		MaxGleaning:     cfg.EntityExtractMaxGleaning,
		MaxParseRetries: cfg.MaxParseRetries,
		DisableCache:    !cfg.EnableLLMCacheForExtract,
		Params:          cfg.Params,
		Logger:          logger,
	})

	e := &Engine{
		cfg:       cfg,
		store:     storage,
		llmGate:   llmGate,
		embedGate: embedGate,
		tok:       tok,
		chunker:   chunker,
		extractor: extractor,
		docLocks:  extract.NewKeyLock(),
		logger:    logger,
		now:       time.Now,
	}
	e.embedder = &guardedEmbedder{Embedder: gatedEmbedder, tok: tok, maxTokens: cfg.EmbeddingMaxTokens}

	e.indexer = extract.NewIndexer(extract.IndexerConfig{
		Graph:               storage.Graph,
		EntityVectors:       storage.EntityVectors,
		RelationshipVectors: storage.RelationshipVectors,
		Extractions:         storage.Extractions,
		Embedder:            e.embedder,
		Summarizer: &extract.Summarizer{
			Model:     gatedLLM,
			Cache:     c,
			Tokenizer: tok,
			MaxTokens: cfg.SummaryMaxTokens,
			Language:  cfg.Language,
			Params:    cfg.Params,
		},
		Logger: logger,
	})
	e.query = query.New(query.Config{
		Chunks:              storage.TextChunks,
		ChunkVectors:        storage.ChunkVectors,
		EntityVectors:       storage.EntityVectors,
		RelationshipVectors: storage.RelationshipVectors,
		Graph:               storage.Graph,
		Embedder:            e.embedder,
		LLM:                 gatedLLM,
		Cache:               c,
		Tokenizer:           tok,
		Params:              cfg.Params,
		ExtractKeywords:     cfg.ExtractKeywords,
		Logger:              logger,
	})
	return e, nil
}

// LLMGate returns the gate every completion call passes
func (e *Engine) LLMGate() *llm.Gate {
	return e.llmGate
}

// EmbeddingGate returns the gate every embedding call passes
func (e *Engine) EmbeddingGate() *llm.Gate {
	return e.embedGate
}

// Storage returns the stores of the engine
func (e *Engine) Storage() *Storage {
	return e.store
}

// Insert records docs and processes them before returning. Failures of one
// document are reported in its result and do not stop the others; the
// returned error is only set when ctx ends.
func (e *Engine) Insert(ctx context.Context, docs ...rag.Document) ([]InsertResult, error) {
	results, err := e.Enqueue(ctx, docs...)
	if err != nil {
		return results, err
	}

	var ids []string
	index := make(map[string]int)
	for i, r := range results {
		if r.Outcome == OutcomeAccepted {
			ids = append(ids, r.ID)
			index[r.ID] = i
		}
	}
	processed, err := e.process(ctx, ids)
	for _, r := range processed {
		results[index[r.ID]] = r
	}
	return results, err
}

// Enqueue stores docs as pending without processing them. Documents already
// processed, and repeats within docs, are reported as duplicates.
func (e *Engine) Enqueue(ctx context.Context, docs ...rag.Document) ([]InsertResult, error) {
	results := make([]InsertResult, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			results[i] = InsertResult{ID: doc.ID, Outcome: OutcomeError, Err: ErrEmptyDocument}
			continue
		}
		if doc.ID == "" {
			doc.ID = rag.DocumentID(doc.Content)
		}
		if seen[doc.ID] {
			results[i] = InsertResult{ID: doc.ID, Outcome: OutcomeDuplicate}
			continue
		}
		seen[doc.ID] = true

		outcome, err := e.enqueue(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return results[:i], ctx.Err()
			}
			results[i] = InsertResult{ID: doc.ID, Outcome: OutcomeError, Err: err}
			continue
		}
		results[i] = InsertResult{ID: doc.ID, Outcome: outcome}
	}
	return results, nil
}

func (e *Engine) enqueue(ctx context.Context, doc rag.Document) (Outcome, error) {
	now := e.now().UTC()
	st, err := e.store.DocStatus.GetStatus(ctx, doc.ID)
	switch {
	case rag.IsNotFound(err):
		st = &rag.DocumentStatus{ID: doc.ID, CreatedAt: now}
	case err != nil:
		return OutcomeError, fmt.Errorf("failed to read status of %s: %w", doc.ID, err)
	case st.Status == rag.StatusProcessed:
		return OutcomeDuplicate, nil
	}

	if err := rag.SetJSON(ctx, e.store.FullDocs, doc.ID, doc); err != nil {
		return OutcomeError, fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	st.Status = rag.StatusPending
	st.ContentSummary = rag.Summary(doc.Content, 100)
	st.ContentLength = len(doc.Content)
	st.Error = ""
	st.UpdatedAt = now
	if err := e.store.DocStatus.SetStatus(ctx, *st); err != nil {
		return OutcomeError, fmt.Errorf("failed to save status of %s: %w", doc.ID, err)
	}
	return OutcomeAccepted, nil
}

// ProcessPending processes every document that has not reached a terminal state
func (e *Engine) ProcessPending(ctx context.Context) ([]InsertResult, error) {
	return e.Resume(ctx, false)
}

// Resume processes documents left pending or interrupted in chunking,
// extracting or indexing; with includeFailed failed documents are retried too.
func (e *Engine) Resume(ctx context.Context, includeFailed bool) ([]InsertResult, error) {
	states := []rag.DocStatus{rag.StatusPending, rag.StatusChunking, rag.StatusExtracting, rag.StatusIndexing}
	if includeFailed {
		states = append(states, rag.StatusFailed)
	}
	var ids []string
	for _, s := range states {
		docs, err := e.store.DocStatus.ListByStatus(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s documents: %w", s, err)
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
	}
	return e.process(ctx, ids)
}

// DeleteDocument removes a document with its chunks, chunk vectors and
// everything its chunks contributed to the graph
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	unlock := e.docLocks.Lock(id)
	defer unlock()

	st, err := e.store.DocStatus.GetStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if err := e.removeChunks(ctx, st.ChunkIDs); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if err := e.store.FullDocs.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if err := e.store.DocStatus.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete status of %s: %w", id, err)
	}
	e.logger.Info("deleted document %s with %d chunks", id, len(st.ChunkIDs))
	return nil
}

func (e *Engine) removeChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if err := e.indexer.Retract(ctx, id); err != nil {
			return err
		}
	}
	if err := e.store.ChunkVectors.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete chunk vectors: %w", err)
	}
	if err := e.store.TextChunks.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Status returns the processing record of a document
func (e *Engine) Status(ctx context.Context, id string) (*rag.DocumentStatus, error) {
	return e.store.DocStatus.GetStatus(ctx, id)
}

// List returns the records of every document in status
func (e *Engine) List(ctx context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	return e.store.DocStatus.ListByStatus(ctx, status)
}

// Query answers q over the indexed documents
func (e *Engine) Query(ctx context.Context, q string, p query.Param) (string, error) {
	return e.query.Query(ctx, q, p)
}

// BuildContext returns the retrieved context of q without calling the model
func (e *Engine) BuildContext(ctx context.Context, q string, p query.Param) (*query.Context, error) {
	return e.query.BuildContext(ctx, q, p)
}

func newBatchID() string {
	return uuid.NewString()[:8]
}
