package rag

import (
	"fmt"
	"sort"
	"time"
)

// DocStatus is the processing state of a document
type DocStatus string

const (
	// StatusPending marks a document that is stored but not yet processed
	StatusPending DocStatus = "pending"
	// StatusChunking marks a document being split into chunks
	StatusChunking DocStatus = "chunking"
	// StatusExtracting marks a document whose chunks are being extracted
	StatusExtracting DocStatus = "extracting"
	// StatusIndexing marks a document whose chunk vectors are being written
	StatusIndexing DocStatus = "indexing"
	// StatusProcessed marks a fully ingested document
	StatusProcessed DocStatus = "processed"
	// StatusFailed marks a document whose processing failed
	StatusFailed DocStatus = "failed"
)

// Terminal reports whether no further transition is expected from s
func (s DocStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// UnknownEntityType is assigned to entities only known as relationship endpoints
const UnknownEntityType = "UNKNOWN"

// FieldSep separates merged descriptions and source ids
const FieldSep = "<SEP>"

// Document is a raw input text
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentStatus is the persisted processing record of a document
type DocumentStatus struct {
	ID             string    `json:"id"`
	Status         DocStatus `json:"status"`
	ContentSummary string    `json:"content_summary"`
	ContentLength  int       `json:"content_length"`
	ChunksCount    int       `json:"chunks_count"`
	ChunkIDs       []string  `json:"chunk_ids,omitempty"`
	FailedChunks   int       `json:"failed_chunks"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Chunk is a contiguous, token-bounded slice of a document
type Chunk struct {
	ID      string `json:"id"`
	DocID   string `json:"full_doc_id"`
	Index   int    `json:"chunk_order_index"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// EntityMention is what a single chunk says about an entity
type EntityMention struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Entity is a node of the knowledge graph
type Entity struct {
	Name        string                   `json:"name"`
	Type        string                   `json:"type"`
	Description string                   `json:"description"`
	SourceIDs   []string                 `json:"source_ids"`
	Mentions    map[string]EntityMention `json:"mentions"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// RelationMention is what a single chunk says about a relationship
type RelationMention struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	Weight      float64  `json:"weight"`
}

// Relationship is an undirected edge between two entities.
// Source is always the lexicographically smaller name.
type Relationship struct {
	Source      string                     `json:"source"`
	Target      string                     `json:"target"`
	Description string                     `json:"description"`
	Keywords    []string                   `json:"keywords,omitempty"`
	Weight      float64                    `json:"weight"`
	SourceIDs   []string                   `json:"source_ids"`
	Mentions    map[string]RelationMention `json:"mentions"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Key returns the unordered identity of the relationship
func (r *Relationship) Key() EdgeKey {
	return NewEdgeKey(r.Source, r.Target)
}

// EdgeKey identifies a relationship by its unordered endpoint pair
type EdgeKey struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewEdgeKey orders the endpoints so that (a, b) and (b, a) compare equal
func NewEdgeKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{Source: a, Target: b}
}

// String renders the key as "source|target"
func (k EdgeKey) String() string {
	return k.Source + "|" + k.Target
}

// VectorRecord is an embedding with its payload
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VectorMatch is a similarity search hit
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SortMatches orders matches by descending score, then ascending id
func SortMatches(m []VectorMatch) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].ID < m[j].ID
	})
}

// MatchesFilter reports whether every filter key equals the metadata value.
// Values are compared by their printed form so decoded JSON numbers match ints.
func MatchesFilter(metadata, filter map[string]any) bool {
	for k, v := range filter {
		mv, ok := metadata[k]
		if !ok || fmt.Sprint(mv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of e
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.SourceIDs = append([]string(nil), e.SourceIDs...)
	if e.Mentions != nil {
		c.Mentions = make(map[string]EntityMention, len(e.Mentions))
		for k, v := range e.Mentions {
			c.Mentions[k] = v
		}
	}
	return &c
}

// Clone returns a deep copy of r
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	c := *r
	c.SourceIDs = append([]string(nil), r.SourceIDs...)
	c.Keywords = append([]string(nil), r.Keywords...)
	if r.Mentions != nil {
		c.Mentions = make(map[string]RelationMention, len(r.Mentions))
		for k, v := range r.Mentions {
			v.Keywords = append([]string(nil), v.Keywords...)
			c.Mentions[k] = v
		}
	}
	return &c
}
