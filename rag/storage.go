package rag

import "context"

// Logical store namespaces. Backends that keep several namespaces in one
// table or keyspace use them to separate records.
const (
	NamespaceFullDocs         = "full_docs"
	NamespaceTextChunks       = "text_chunks"
	NamespaceChunkExtractions = "chunk_extractions"
	NamespaceLLMResponseCache = "llm_response_cache"
	NamespaceChunksVDB        = "chunks"
	NamespaceEntitiesVDB      = "entities"
	NamespaceRelationshipsVDB = "relationships"
	NamespaceGraph            = "chunk_entity_relation"
	NamespaceDocStatus        = "doc_status"
	DefaultWorkspace          = "default"
)

// KVStore is a key/value store holding opaque JSON values.
// Set is an atomic upsert; a value written by Set is durable once Set returns.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// VectorStore is a similarity index over fixed-dimension embeddings.
// Query ranks by cosine similarity, highest first, ties by ascending id.
type VectorStore interface {
	Dimension() int
	Upsert(ctx context.Context, records ...VectorRecord) error
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	Delete(ctx context.Context, ids ...string) error
}

// GraphStore holds the entity/relationship graph. Edges are undirected and
// UpsertEdge fails with ErrMissingEndpoint when either endpoint is absent.
type GraphStore interface {
	UpsertNode(ctx context.Context, entity *Entity) error
	UpsertEdge(ctx context.Context, rel *Relationship) error
	GetNode(ctx context.Context, name string) (*Entity, error)
	GetEdge(ctx context.Context, source, target string) (*Relationship, error)
	GetEdges(ctx context.Context, name string) ([]*Relationship, error)
	NodeDegree(ctx context.Context, name string) (int, error)
	Neighborhood(ctx context.Context, name string, hops int) ([]*Entity, []*Relationship, error)
	DeleteNode(ctx context.Context, name string) error
	DeleteEdge(ctx context.Context, source, target string) error
}

// DocStatusStore tracks document processing state
type DocStatusStore interface {
	SetStatus(ctx context.Context, status DocumentStatus) error
	GetStatus(ctx context.Context, id string) (*DocumentStatus, error)
	ListByStatus(ctx context.Context, status DocStatus) ([]DocumentStatus, error)
	// Delete removes the record of id; a missing record is not an error
	Delete(ctx context.Context, id string) error
}

// Closer is implemented by stores that own resources
type Closer interface {
	Close() error
}
