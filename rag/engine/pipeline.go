package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/splitter"
)

// process runs the pipeline over ids with at most MaxParallelInsert
// documents in flight
func (e *Engine) process(ctx context.Context, ids []string) ([]InsertResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	batch := newBatchID()
	start := time.Now()
	e.logger.Info("batch %s: processing %d documents", batch, len(ids))

	results := make([]InsertResult, len(ids))
	var g errgroup.Group
	g.SetLimit(e.cfg.MaxParallelInsert)
	for i, id := range ids {
		g.Go(func() error {
			err := e.processDocument(ctx, id)
			if err != nil {
				e.logger.Error("batch %s: document %s failed: %v", batch, id, err)
				results[i] = InsertResult{ID: id, Outcome: OutcomeError, Err: err}
				return nil
			}
			results[i] = InsertResult{ID: id, Outcome: OutcomeAccepted}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.logger.Info("batch %s: %d processed, %d failed in %v", batch, len(ids)-failed, failed, time.Since(start))
	return results, ctx.Err()
}

// processDocument drives one document through chunking, extracting and
// indexing. A cancelled context leaves the status where it was; any other
// error marks the document failed.
func (e *Engine) processDocument(ctx context.Context, id string) error {
	unlock := e.docLocks.Lock(id)
	defer unlock()

	st, err := e.store.DocStatus.GetStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if st.Status == rag.StatusProcessed {
		return nil
	}

	if err := e.runPipeline(ctx, st); err != nil {
		if ctx.Err() != nil {
			return err
		}
		st.Status = rag.StatusFailed
		st.Error = err.Error()
		st.UpdatedAt = e.now().UTC()
		if serr := e.store.DocStatus.SetStatus(ctx, *st); serr != nil {
			return errors.Join(err, fmt.Errorf("failed to record failure: %w", serr))
		}
		return err
	}
	return nil
}

func (e *Engine) runPipeline(ctx context.Context, st *rag.DocumentStatus) error {
	doc, ok, err := rag.GetJSON[rag.Document](ctx, e.store.FullDocs, st.ID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if !ok {
		return rag.NotFoundError("document", st.ID)
	}

	if err := e.transition(ctx, st, rag.StatusChunking); err != nil {
		return err
	}
	chunks, err := e.chunkDocument(ctx, st, doc)
	if err != nil {
		return err
	}

	if err := e.transition(ctx, st, rag.StatusExtracting); err != nil {
		return err
	}
	failed, err := e.extractChunks(ctx, chunks)
	if err != nil {
		return err
	}
	st.FailedChunks = failed

	if err := e.transition(ctx, st, rag.StatusIndexing); err != nil {
		return err
	}
	if err := e.embedChunks(ctx, chunks); err != nil {
		return err
	}

	st.Error = ""
	if err := e.transition(ctx, st, rag.StatusProcessed); err != nil {
		return err
	}
	e.logger.Info("document %s processed: %d chunks, %d failed", st.ID, len(chunks), failed)
	return nil
}

func (e *Engine) transition(ctx context.Context, st *rag.DocumentStatus, to rag.DocStatus) error {
	e.logger.Debug("document %s: %s -> %s", st.ID, st.Status, to)
	st.Status = to
	st.UpdatedAt = e.now().UTC()
	if err := e.store.DocStatus.SetStatus(ctx, *st); err != nil {
		return fmt.Errorf("failed to set status %s: %w", to, err)
	}
	return nil
}

// chunkDocument splits doc, stores the chunks and removes chunks of an
// earlier run that the new split no longer produces
func (e *Engine) chunkDocument(ctx context.Context, st *rag.DocumentStatus, doc *rag.Document) ([]rag.Chunk, error) {
	chunks := e.chunker.Chunk(doc.ID, doc.Content)
	ids := make([]string, len(chunks))
	current := make(map[string]bool, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		current[c.ID] = true
		if err := rag.SetJSON(ctx, e.store.TextChunks, c.ID, c); err != nil {
			return nil, fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	var stale []string
	for _, id := range st.ChunkIDs {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if err := e.removeChunks(ctx, stale); err != nil {
		return nil, fmt.Errorf("failed to remove stale chunks: %w", err)
	}

	st.ChunkIDs = ids
	st.ChunksCount = len(chunks)
	return chunks, nil
}

// extractChunks extracts and indexes every chunk concurrently. Chunks whose
// answer never parsed are counted and skipped; any other error stops the
// document.
func (e *Engine) extractChunks(ctx context.Context, chunks []rag.Chunk) (int, error) {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.LLMMaxAsync)
	for _, chunk := range chunks {
		g.Go(func() error {
			c, err := e.extractor.Extract(gctx, chunk)
			if errors.Is(err, rag.ErrExtractionParse) {
				failed.Add(1)
				e.logger.Warn("chunk %s of %s skipped: %v", chunk.ID, chunk.DocID, err)
				return nil
			}
			if err != nil {
				return err
			}
			if err := e.indexer.Apply(gctx, c); err != nil {
				return fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(failed.Load()), nil
}

// embedChunks writes chunk vectors in batches of EmbeddingBatchNum
func (e *Engine) embedChunks(ctx context.Context, chunks []rag.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	size := e.cfg.EmbeddingBatchNum
	for start := 0; start < len(chunks); start += size {
		batch := chunks[start:min(start+size, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := e.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("failed to embed chunks: got %d vectors for %d texts: %w", len(vecs), len(batch), rag.ErrModelCall)
			}
			records := make([]rag.VectorRecord, len(batch))
			for i, c := range batch {
				records[i] = rag.VectorRecord{
					ID:        c.ID,
					Embedding: vecs[i],
					Content:   c.Content,
					Metadata:  map[string]any{"full_doc_id": c.DocID, "chunk_order_index": c.Index},
				}
			}
			if err := e.store.ChunkVectors.Upsert(gctx, records...); err != nil {
				return fmt.Errorf("failed to save chunk vectors: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// guardedEmbedder cuts texts to maxTokens before embedding
type guardedEmbedder struct {
	rag.Embedder
	tok       splitter.Tokenizer
	maxTokens int
}

func (g *guardedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	cut := texts
	if g.maxTokens > 0 {
		cut = make([]string, len(texts))
		for i, t := range texts {
			cut[i] = t
			if spans := g.tok.Tokenize(t); len(spans) > g.maxTokens {
				cut[i] = t[:spans[g.maxTokens-1].End]
			}
		}
	}
	vecs, err := g.Embedder.EmbedDocuments(ctx, cut)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if len(v) != g.GetDimension() {
			return nil, rag.DimensionError(g.GetDimension(), len(v))
		}
	}
	return vecs, nil
}
