package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

func (e *Engine) naive(ctx context.Context, q string, p Param) (*Context, error) {
	vec, err := e.embedQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	matches, err := e.cfg.ChunkVectors.Query(ctx, vec, p.ChunkTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	qc := &Context{}
	var missing []string
	for _, m := range matches {
		if m.Content == "" {
			missing = append(missing, m.ID)
		}
	}
	stored, err := e.loadChunks(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		text := m.Content
		if text == "" {
			c, ok := stored[m.ID]
			if !ok {
				continue
			}
			text = c.Content
		}
		qc.Sources = append(qc.Sources, newItem(e.tok, m.ID, text))
	}
	return qc, nil
}

type rankedNode struct {
	entity *rag.Entity
	degree int
}

type rankedEdge struct {
	rel    *rag.Relationship
	degree int
}

func sortEdges(edges []rankedEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.degree != b.degree {
			return a.degree > b.degree
		}
		if a.rel.Weight != b.rel.Weight {
			return a.rel.Weight > b.rel.Weight
		}
		return a.rel.Key().String() < b.rel.Key().String()
	})
}

// degrees memoizes node degrees for one query
type degrees struct {
	graph rag.GraphStore
	cache map[string]int
}

func (d *degrees) of(ctx context.Context, name string) (int, error) {
	if n, ok := d.cache[name]; ok {
		return n, nil
	}
	n, err := d.graph.NodeDegree(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to read degree of %s: %w", name, err)
	}
	d.cache[name] = n
	return n, nil
}

func (e *Engine) local(ctx context.Context, keywords string, p Param) (*Context, error) {
	vec, err := e.embedQuery(ctx, keywords)
	if err != nil {
		return nil, err
	}
	matches, err := e.cfg.EntityVectors.Query(ctx, vec, p.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}

	deg := &degrees{graph: e.cfg.Graph, cache: make(map[string]int)}
	var nodes []rankedNode
	picked := make(map[string]bool)
	for _, m := range matches {
		name := metaString(m.Metadata, "entity_name")
		if name == "" || picked[name] {
			continue
		}
		ent, err := e.cfg.Graph.GetNode(ctx, name)
		if rag.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %s: %w", name, err)
		}
		d, err := deg.of(ctx, name)
		if err != nil {
			return nil, err
		}
		picked[name] = true
		nodes = append(nodes, rankedNode{entity: ent, degree: d})
	}

	var edges []rankedEdge
	seenEdge := make(map[rag.EdgeKey]bool)
	adjacent := make(map[string]*rag.Entity)
	for _, n := range nodes {
		around, rels, err := e.cfg.Graph.Neighborhood(ctx, n.entity.Name, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to load neighborhood of %s: %w", n.entity.Name, err)
		}
		for _, a := range around {
			adjacent[a.Name] = a
		}
		for _, r := range rels {
			if seenEdge[r.Key()] {
				continue
			}
			seenEdge[r.Key()] = true
			ds, err := deg.of(ctx, r.Source)
			if err != nil {
				return nil, err
			}
			dt, err := deg.of(ctx, r.Target)
			if err != nil {
				return nil, err
			}
			edges = append(edges, rankedEdge{rel: r, degree: ds + dt})
		}
	}
	sortEdges(edges)

	neighbors := make([]rankedNode, 0)
	for _, ed := range edges {
		for _, name := range []string{ed.rel.Source, ed.rel.Target} {
			if picked[name] {
				continue
			}
			picked[name] = true
			ent, ok := adjacent[name]
			if !ok {
				continue
			}
			d, err := deg.of(ctx, name)
			if err != nil {
				return nil, err
			}
			neighbors = append(neighbors, rankedNode{entity: ent, degree: d})
		}
	}

	qc := &Context{}
	for _, n := range append(nodes, neighbors...) {
		qc.Entities = append(qc.Entities, e.entityItem(n))
	}
	for _, ed := range edges {
		qc.Relationships = append(qc.Relationships, e.relationshipItem(ed))
	}

	chunkIDs := rankLocalChunks(nodes, edges)
	if qc.Sources, err = e.chunkItems(ctx, chunkIDs); err != nil {
		return nil, err
	}
	return qc, nil
}

// rankLocalChunks orders the source chunks of the matched entities by entity
// order, then by how many retrieved relationships incident to that entity
// share the chunk.
func rankLocalChunks(nodes []rankedNode, edges []rankedEdge) []string {
	type ranked struct {
		id    string
		order int
		rels  int
	}
	var list []ranked
	seen := make(map[string]bool)
	for i, n := range nodes {
		for _, id := range n.entity.SourceIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			count := 0
			for _, ed := range edges {
				if ed.rel.Source != n.entity.Name && ed.rel.Target != n.entity.Name {
					continue
				}
				for _, src := range ed.rel.SourceIDs {
					if src == id {
						count++
						break
					}
				}
			}
			list = append(list, ranked{id: id, order: i, rels: count})
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].order != list[j].order {
			return list[i].order < list[j].order
		}
		if list[i].rels != list[j].rels {
			return list[i].rels > list[j].rels
		}
		return list[i].id < list[j].id
	})
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.id
	}
	return out
}

func (e *Engine) global(ctx context.Context, keywords string, p Param) (*Context, error) {
	vec, err := e.embedQuery(ctx, keywords)
	if err != nil {
		return nil, err
	}
	matches, err := e.cfg.RelationshipVectors.Query(ctx, vec, p.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search relationships: %w", err)
	}

	deg := &degrees{graph: e.cfg.Graph, cache: make(map[string]int)}
	var edges []rankedEdge
	seenEdge := make(map[rag.EdgeKey]bool)
	for _, m := range matches {
		src, tgt := metaString(m.Metadata, "src_id"), metaString(m.Metadata, "tgt_id")
		if src == "" || tgt == "" {
			continue
		}
		key := rag.NewEdgeKey(src, tgt)
		if seenEdge[key] {
			continue
		}
		r, err := e.cfg.Graph.GetEdge(ctx, src, tgt)
		if rag.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load relationship %s: %w", key, err)
		}
		seenEdge[key] = true
		ds, err := deg.of(ctx, key.Source)
		if err != nil {
			return nil, err
		}
		dt, err := deg.of(ctx, key.Target)
		if err != nil {
			return nil, err
		}
		edges = append(edges, rankedEdge{rel: r, degree: ds + dt})
	}
	sortEdges(edges)

	qc := &Context{}
	entities := make(map[string]*rag.Entity)
	for _, ed := range edges {
		qc.Relationships = append(qc.Relationships, e.relationshipItem(ed))
		for _, name := range []string{ed.rel.Source, ed.rel.Target} {
			if _, ok := entities[name]; ok {
				continue
			}
			ent, err := e.cfg.Graph.GetNode(ctx, name)
			if rag.IsNotFound(err) {
				entities[name] = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load entity %s: %w", name, err)
			}
			entities[name] = ent
			d, err := deg.of(ctx, name)
			if err != nil {
				return nil, err
			}
			qc.Entities = append(qc.Entities, e.entityItem(rankedNode{entity: ent, degree: d}))
		}
	}

	for _, com := range communities(edges, entities) {
		qc.Communities = append(qc.Communities, newItem(e.tok, com.id(), com.String()))
	}

	var chunkIDs []string
	seen := make(map[string]bool)
	for _, ed := range edges {
		for _, id := range ed.rel.SourceIDs {
			if !seen[id] {
				seen[id] = true
				chunkIDs = append(chunkIDs, id)
			}
		}
	}
	if qc.Sources, err = e.chunkItems(ctx, chunkIDs); err != nil {
		return nil, err
	}
	return qc, nil
}

func (e *Engine) entityItem(n rankedNode) Item {
	text := fmt.Sprintf("%s | %s | %s | degree %d", n.entity.Name, n.entity.Type, n.entity.Description, n.degree)
	return newItem(e.tok, n.entity.Name, text)
}

func (e *Engine) relationshipItem(ed rankedEdge) Item {
	r := ed.rel
	text := fmt.Sprintf("%s -> %s | %s | %s | weight %g | degree %d",
		r.Source, r.Target, strings.Join(r.Keywords, ", "), r.Description, r.Weight, ed.degree)
	return newItem(e.tok, r.Key().String(), text)
}

func (e *Engine) loadChunks(ctx context.Context, ids []string) (map[string]rag.Chunk, error) {
	out := make(map[string]rag.Chunk, len(ids))
	if len(ids) == 0 || e.cfg.Chunks == nil {
		return out, nil
	}
	raw, err := e.cfg.Chunks.BatchGet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	for id, data := range raw {
		var c rag.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			e.logger.Warn("skipping unreadable chunk %s: %v", id, err)
			continue
		}
		out[id] = c
	}
	return out, nil
}

// chunkItems loads chunks in the given order, skipping missing ones
func (e *Engine) chunkItems(ctx context.Context, ids []string) ([]Item, error) {
	chunks, err := e.loadChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, id := range ids {
		if c, ok := chunks[id]; ok {
			items = append(items, newItem(e.tok, id, c.Content))
		}
	}
	return items, nil
}

func metaString(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
