package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
)

// Indexer applies chunk contributions to the graph and vector stores
type Indexer struct {
	graph         rag.GraphStore
	entities      rag.VectorStore
	relationships rag.VectorStore
	extractions   rag.KVStore
	embedder      rag.Embedder
	summarizer    *Summarizer
	locks         *KeyLock
	logger        log.Logger
	now           func() time.Time
}

// IndexerConfig holds the stores an Indexer writes to
type IndexerConfig struct {
	Graph               rag.GraphStore
	EntityVectors       rag.VectorStore
	RelationshipVectors rag.VectorStore
	// Extractions keeps the last contribution of every chunk
	Extractions rag.KVStore
	Embedder    rag.Embedder
	Summarizer  *Summarizer
	Logger      log.Logger
}

// NewIndexer creates an Indexer
func NewIndexer(cfg IndexerConfig) *Indexer {
	return &Indexer{
		graph:         cfg.Graph,
		entities:      cfg.EntityVectors,
		relationships: cfg.RelationshipVectors,
		extractions:   cfg.Extractions,
		embedder:      cfg.Embedder,
		summarizer:    cfg.Summarizer,
		locks:         NewKeyLock(),
		logger:        log.OrDefault(cfg.Logger),
		now:           time.Now,
	}
}

// Previous loads the stored contribution of chunkID, nil when there is none
func (ix *Indexer) Previous(ctx context.Context, chunkID string) (*Contribution, error) {
	c, ok, err := rag.GetJSON[Contribution](ctx, ix.extractions, chunkID)
	if err != nil || !ok {
		return nil, err
	}
	return c, nil
}

// Apply replaces whatever chunk c.ChunkID contributed before with c.
// Entities are written first so that every relationship finds its
// endpoints; entities left without any mention are removed last.
func (ix *Indexer) Apply(ctx context.Context, c *Contribution) error {
	prev, err := ix.Previous(ctx, c.ChunkID)
	if err != nil {
		return fmt.Errorf("failed to load previous extraction of %s: %w", c.ChunkID, err)
	}
	if err := ix.replace(ctx, c.ChunkID, prev, c); err != nil {
		return err
	}
	if err := rag.SetJSON(ctx, ix.extractions, c.ChunkID, c); err != nil {
		return fmt.Errorf("failed to save extraction of %s: %w", c.ChunkID, err)
	}
	return nil
}

// Retract removes everything chunkID contributed
func (ix *Indexer) Retract(ctx context.Context, chunkID string) error {
	prev, err := ix.Previous(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("failed to load previous extraction of %s: %w", chunkID, err)
	}
	if prev == nil {
		return nil
	}
	if err := ix.replace(ctx, chunkID, prev, nil); err != nil {
		return err
	}
	return ix.extractions.Delete(ctx, chunkID)
}

func (ix *Indexer) replace(ctx context.Context, chunkID string, prev, next *Contribution) error {
	var nextEntities map[string]rag.EntityMention
	if next != nil {
		nextEntities = next.Entities
	}
	var prevEntities map[string]rag.EntityMention
	if prev != nil {
		prevEntities = prev.Entities
	}
	prevRels, nextRels := prev.relationMap(), next.relationMap()

	names := unionNames(prevEntities, nextEntities)
	for _, name := range names {
		m, ok := nextEntities[name]
		if err := ix.updateEntity(ctx, chunkID, name, m, ok); err != nil {
			return err
		}
	}

	for _, key := range unionKeys(prevRels, nextRels) {
		m, ok := nextRels[key]
		if err := ix.updateRelationship(ctx, chunkID, key, m, ok); err != nil {
			return err
		}
	}

	for _, name := range names {
		if _, ok := nextEntities[name]; ok {
			continue
		}
		if err := ix.pruneEntity(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) updateEntity(ctx context.Context, chunkID, name string, m rag.EntityMention, present bool) error {
	defer ix.locks.Lock("entity:" + name)()

	e, err := ix.graph.GetNode(ctx, name)
	if rag.IsNotFound(err) {
		if !present {
			return nil
		}
		e, err = &rag.Entity{Name: name}, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load entity %s: %w", name, err)
	}
	if e.Mentions == nil {
		e.Mentions = make(map[string]rag.EntityMention)
	}
	if present {
		e.Mentions[chunkID] = m
	} else {
		delete(e.Mentions, chunkID)
	}
	MergeEntity(e)
	e.UpdatedAt = ix.now()

	if len(e.Mentions) == 0 {
		// left for pruneEntity once no relationship needs it
		return ix.graph.UpsertNode(ctx, e)
	}
	if e.Description, err = ix.summarizer.Summarize(ctx, name, e.Description); err != nil {
		return fmt.Errorf("failed to summarize entity %s: %w", name, err)
	}
	if err := ix.graph.UpsertNode(ctx, e); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", name, err)
	}
	return ix.embed(ctx, ix.entities, rag.VectorRecord{
		ID:      rag.EntityVectorID(name),
		Content: name + "\n" + e.Description,
		Metadata: map[string]any{
			"entity_name": name,
			"entity_type": e.Type,
		},
	})
}

func (ix *Indexer) pruneEntity(ctx context.Context, name string) error {
	defer ix.locks.Lock("entity:" + name)()

	e, err := ix.graph.GetNode(ctx, name)
	switch {
	case rag.IsNotFound(err):
		// the node may be gone from an earlier interrupted prune
	case err != nil:
		return fmt.Errorf("failed to load entity %s: %w", name, err)
	case len(e.Mentions) > 0:
		return nil
	default:
		if err := ix.graph.DeleteNode(ctx, name); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", name, err)
		}
	}
	if err := ix.entities.Delete(ctx, rag.EntityVectorID(name)); err != nil {
		return fmt.Errorf("failed to delete entity vector %s: %w", name, err)
	}
	ix.logger.Debug("entity %s removed, no chunk mentions it", name)
	return nil
}

func (ix *Indexer) updateRelationship(ctx context.Context, chunkID string, key rag.EdgeKey, m rag.RelationMention, present bool) error {
	defer ix.locks.Lock("relationship:" + key.String())()

	r, err := ix.graph.GetEdge(ctx, key.Source, key.Target)
	if rag.IsNotFound(err) {
		if !present {
			return ix.deleteRelationshipVector(ctx, key)
		}
		r, err = &rag.Relationship{Source: key.Source, Target: key.Target}, nil
	}
	if err != nil {
		return fmt.Errorf("failed to load relationship %s: %w", key, err)
	}
	if r.Mentions == nil {
		r.Mentions = make(map[string]rag.RelationMention)
	}
	if present {
		r.Mentions[chunkID] = m
	} else {
		delete(r.Mentions, chunkID)
	}

	if len(r.Mentions) == 0 {
		if err := ix.graph.DeleteEdge(ctx, key.Source, key.Target); err != nil {
			return fmt.Errorf("failed to delete relationship %s: %w", key, err)
		}
		return ix.deleteRelationshipVector(ctx, key)
	}

	MergeRelationship(r)
	r.UpdatedAt = ix.now()
	if r.Description, err = ix.summarizer.Summarize(ctx, key.Source+" -> "+key.Target, r.Description); err != nil {
		return fmt.Errorf("failed to summarize relationship %s: %w", key, err)
	}
	if err := ix.graph.UpsertEdge(ctx, r); err != nil {
		return fmt.Errorf("failed to save relationship %s: %w", key, err)
	}
	return ix.embed(ctx, ix.relationships, rag.VectorRecord{
		ID:      rag.RelationshipVectorID(key),
		Content: strings.Join(r.Keywords, ", ") + "\t" + key.Source + "\n" + key.Target + "\n" + r.Description,
		Metadata: map[string]any{
			"src_id": key.Source,
			"tgt_id": key.Target,
		},
	})
}

func (ix *Indexer) deleteRelationshipVector(ctx context.Context, key rag.EdgeKey) error {
	if err := ix.relationships.Delete(ctx, rag.RelationshipVectorID(key)); err != nil {
		return fmt.Errorf("failed to delete relationship vector %s: %w", key, err)
	}
	return nil
}

func (ix *Indexer) embed(ctx context.Context, store rag.VectorStore, rec rag.VectorRecord) error {
	vecs, err := ix.embedder.EmbedDocuments(ctx, []string{rec.Content})
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", rec.ID, err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("failed to embed %s: %w", rec.ID, rag.ErrModelCall)
	}
	rec.Embedding = vecs[0]
	if err := store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("failed to index %s: %w", rec.ID, err)
	}
	return nil
}

func unionNames(a, b map[string]rag.EntityMention) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionKeys(a, b map[rag.EdgeKey]rag.RelationMention) []rag.EdgeKey {
	set := make(map[rag.EdgeKey]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	out := make([]rag.EdgeKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
