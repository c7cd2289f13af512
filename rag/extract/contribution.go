package extract

import (
	"sort"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// DefaultRelationshipWeight is used when the model gives no weight
const DefaultRelationshipWeight = 1.0

// Contribution is everything one chunk says about the graph
type Contribution struct {
	ChunkID       string                       `json:"chunk_id"`
	DocID         string                       `json:"doc_id"`
	Entities      map[string]rag.EntityMention `json:"entities"`
	Relationships []RelationshipContribution   `json:"relationships"`
}

// RelationshipContribution is one chunk's mention of a relationship
type RelationshipContribution struct {
	Source string `json:"source"`
	Target string `json:"target"`
	rag.RelationMention
}

// Key returns the unordered identity of the relationship
func (r RelationshipContribution) Key() rag.EdgeKey {
	return rag.NewEdgeKey(r.Source, r.Target)
}

// NewContribution normalizes and folds the results of all prompts of a chunk.
// Names are normalized, self loops dropped, and relationship endpoints the
// model did not list as entities become UNKNOWN mentions.
func NewContribution(chunk rag.Chunk, results ...*Result) *Contribution {
	c := &Contribution{
		ChunkID:  chunk.ID,
		DocID:    chunk.DocID,
		Entities: make(map[string]rag.EntityMention),
	}
	rels := make(map[rag.EdgeKey]rag.RelationMention)

	for _, r := range results {
		if r == nil {
			continue
		}
		for _, e := range r.Entities {
			name := rag.NormalizeEntityName(e.Name)
			if name == "" {
				continue
			}
			c.Entities[name] = foldEntity(c.Entities[name], e)
		}
		for _, rel := range r.Relationships {
			src, tgt := rag.NormalizeEntityName(rel.Source), rag.NormalizeEntityName(rel.Target)
			if src == "" || tgt == "" || src == tgt {
				continue
			}
			key := rag.NewEdgeKey(src, tgt)
			rels[key] = foldRelation(rels[key], rel)
		}
	}

	for key, m := range rels {
		for _, name := range []string{key.Source, key.Target} {
			if _, ok := c.Entities[name]; !ok {
				c.Entities[name] = rag.EntityMention{Type: rag.UnknownEntityType}
			}
		}
		c.Relationships = append(c.Relationships, RelationshipContribution{Source: key.Source, Target: key.Target, RelationMention: m})
	}
	sort.Slice(c.Relationships, func(i, j int) bool {
		a, b := c.Relationships[i], c.Relationships[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	return c
}

// Empty reports whether the chunk contributes nothing
func (c *Contribution) Empty() bool {
	return c == nil || (len(c.Entities) == 0 && len(c.Relationships) == 0)
}

func (c *Contribution) relationMap() map[rag.EdgeKey]rag.RelationMention {
	out := make(map[rag.EdgeKey]rag.RelationMention)
	if c == nil {
		return out
	}
	for _, r := range c.Relationships {
		out[r.Key()] = r.RelationMention
	}
	return out
}

func foldEntity(m rag.EntityMention, e ExtractedEntity) rag.EntityMention {
	typ := strings.ToUpper(strings.TrimSpace(e.Type))
	if typ == "" {
		typ = rag.UnknownEntityType
	}
	if m.Type == "" || m.Type == rag.UnknownEntityType {
		m.Type = typ
	}
	m.Description = appendDistinct(m.Description, e.Description)
	return m
}

func foldRelation(m rag.RelationMention, r ExtractedRelationship) rag.RelationMention {
	w := float64(r.Weight)
	if w <= 0 {
		w = DefaultRelationshipWeight
	}
	m.Weight += w
	m.Description = appendDistinct(m.Description, r.Description)
	m.Keywords = unionSorted(m.Keywords, r.Keywords)
	return m
}

func appendDistinct(joined, desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return joined
	}
	if joined == "" {
		return desc
	}
	for _, part := range strings.Split(joined, rag.FieldSep) {
		if part == desc {
			return joined
		}
	}
	return joined + rag.FieldSep + desc
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
