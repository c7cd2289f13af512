package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/falkordb"
	"github.com/smallnest/graphrag/rag/store/file"
	"github.com/smallnest/graphrag/rag/store/memory"
	"github.com/smallnest/graphrag/rag/store/postgres"
	"github.com/smallnest/graphrag/rag/store/redis"
	"github.com/smallnest/graphrag/rag/store/sqlite"
)

// Backend names accepted by StorageOptions
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFalkorDB = "falkordb"
	BackendSQLite   = "sqlite"
)

// Storage is the full set of stores an Engine works on
type Storage struct {
	FullDocs    rag.KVStore
	TextChunks  rag.KVStore
	Extractions rag.KVStore
	// LLMCache backs the response cache, may be nil
	LLMCache rag.KVStore

	ChunkVectors        rag.VectorStore
	EntityVectors       rag.VectorStore
	RelationshipVectors rag.VectorStore

	Graph     rag.GraphStore
	DocStatus rag.DocStatusStore

	closers []func() error
}

// NewMemoryStorage returns in-process stores of the given embedding dimension
func NewMemoryStorage(dimension int) *Storage {
	return &Storage{
		FullDocs:            memory.NewKVStore(),
		TextChunks:          memory.NewKVStore(),
		Extractions:         memory.NewKVStore(),
		LLMCache:            memory.NewKVStore(),
		ChunkVectors:        memory.NewVectorStore(dimension),
		EntityVectors:       memory.NewVectorStore(dimension),
		RelationshipVectors: memory.NewVectorStore(dimension),
		Graph:               memory.NewGraph(),
		DocStatus:           memory.NewDocStatusStore(),
	}
}

// StorageOptions selects a backend per capability
type StorageOptions struct {
	KV        string `yaml:"kv" json:"kv"`
	Vector    string `yaml:"vector" json:"vector"`
	Graph     string `yaml:"graph" json:"graph"`
	DocStatus string `yaml:"doc_status" json:"doc_status"`

	Workspace string `yaml:"workspace" json:"workspace"`
	Dimension int    `yaml:"dimension" json:"dimension"`
	// Dir is the working directory of the file backend
	Dir string `yaml:"dir" json:"dir"`
	// GraphName is the FalkorDB graph key
	GraphName string `yaml:"graph_name" json:"graph_name"`
	// Redis carries key prefix and TTL of redis stores
	Redis redis.Options `yaml:"redis" json:"redis"`
	// CacheTTL expires LLM cache entries, zero keeps them
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	// SkipSchema leaves table and index creation to the operator
	SkipSchema bool `yaml:"skip_schema" json:"skip_schema"`
}

// Connections are the shared handles injected into the stores. Only the
// handles of the selected backends are required.
type Connections struct {
	Postgres postgres.DBPool
	Redis    goredis.UniversalClient
	// FalkorDB defaults to Redis when nil
	FalkorDB falkordb.Conn
	SQLite   *sql.DB
}

type schemaIniter interface {
	InitSchema(ctx context.Context) error
}

// OpenStorage builds the stores selected by opts on the shared connections
func OpenStorage(ctx context.Context, opts StorageOptions, conns Connections) (*Storage, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", rag.ErrInvalidConfig, opts.Dimension)
	}
	if opts.Workspace == "" {
		opts.Workspace = rag.DefaultWorkspace
	}
	if opts.GraphName == "" {
		opts.GraphName = opts.Workspace + "_" + rag.NamespaceGraph
	}
	if conns.FalkorDB == nil && conns.Redis != nil {
		conns.FalkorDB = conns.Redis
	}

	o := &opener{ctx: ctx, opts: opts, conns: conns}
	s := &Storage{}
	var err error
	kv := func(ns string) rag.KVStore {
		if err != nil {
			return nil
		}
		var st rag.KVStore
		st, err = o.kv(ns)
		return st
	}
	vec := func(ns string) rag.VectorStore {
		if err != nil {
			return nil
		}
		var st rag.VectorStore
		st, err = o.vector(ns)
		return st
	}

	s.FullDocs = kv(rag.NamespaceFullDocs)
	s.TextChunks = kv(rag.NamespaceTextChunks)
	s.Extractions = kv(rag.NamespaceChunkExtractions)
	s.LLMCache = kv(rag.NamespaceLLMResponseCache)
	s.ChunkVectors = vec(rag.NamespaceChunksVDB)
	s.EntityVectors = vec(rag.NamespaceEntitiesVDB)
	s.RelationshipVectors = vec(rag.NamespaceRelationshipsVDB)
	if err == nil {
		s.Graph, err = o.graph()
	}
	if err == nil {
		s.DocStatus, err = o.docStatus()
	}
	if err == nil {
		err = o.initSchema()
	}
	if err != nil {
		return nil, err
	}
	for _, st := range s.all() {
		if c, ok := st.(rag.Closer); ok {
			s.closers = append(s.closers, c.Close)
		}
	}
	return s, nil
}

// Close releases resources owned by the stores. Injected connections stay open.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *Storage) all() []any {
	return []any{s.FullDocs, s.TextChunks, s.Extractions, s.LLMCache,
		s.ChunkVectors, s.EntityVectors, s.RelationshipVectors, s.Graph, s.DocStatus}
}

func (s *Storage) validate() error {
	required := []struct {
		name    string
		missing bool
	}{
		{rag.NamespaceFullDocs, s.FullDocs == nil},
		{rag.NamespaceTextChunks, s.TextChunks == nil},
		{rag.NamespaceChunkExtractions, s.Extractions == nil},
		{rag.NamespaceChunksVDB + " vector", s.ChunkVectors == nil},
		{rag.NamespaceEntitiesVDB + " vector", s.EntityVectors == nil},
		{rag.NamespaceRelationshipsVDB + " vector", s.RelationshipVectors == nil},
		{"graph", s.Graph == nil},
		{rag.NamespaceDocStatus, s.DocStatus == nil},
	}
	for _, r := range required {
		if r.missing {
			return fmt.Errorf("%w: %s store is required", rag.ErrInvalidConfig, r.name)
		}
	}
	return nil
}

type opener struct {
	ctx     context.Context
	opts    StorageOptions
	conns   Connections
	schemas []schemaIniter
	sqlite  bool
	// vector stores whose stored rows are checked against the dimension
	dims []dimensionChecker
}

type dimensionChecker interface {
	CheckDimension(ctx context.Context) error
}

func missingConn(backend, capability string) error {
	return fmt.Errorf("%w: %s %s store needs a %s connection", rag.ErrInvalidConfig, backend, capability, backend)
}

func unknownBackend(name, capability string) error {
	return fmt.Errorf("%w: unknown %s backend %q", rag.ErrInvalidConfig, capability, name)
}

func (o *opener) path(ns string) (string, error) {
	if o.opts.Dir == "" {
		return "", fmt.Errorf("%w: file backend needs a working directory", rag.ErrInvalidConfig)
	}
	return file.Path(o.opts.Dir, o.opts.Workspace, ns), nil
}

func (o *opener) kv(ns string) (rag.KVStore, error) {
	switch o.opts.KV {
	case BackendMemory, "":
		return memory.NewKVStore(), nil
	case BackendFile:
		p, err := o.path(ns)
		if err != nil {
			return nil, err
		}
		return file.OpenKVStore(p)
	case BackendPostgres:
		if o.conns.Postgres == nil {
			return nil, missingConn(BackendPostgres, "kv")
		}
		st := postgres.NewKVStore(o.conns.Postgres, o.opts.Workspace, ns)
		o.schemas = append(o.schemas, st)
		return st, nil
	case BackendRedis:
		if o.conns.Redis == nil {
			return nil, missingConn(BackendRedis, "kv")
		}
		ro := o.opts.Redis
		if ns == rag.NamespaceLLMResponseCache && o.opts.CacheTTL > 0 {
			ro.TTL = o.opts.CacheTTL
		}
		return redis.NewKVStore(o.conns.Redis, ro, o.opts.Workspace, ns), nil
	case BackendSQLite:
		if o.conns.SQLite == nil {
			return nil, missingConn(BackendSQLite, "kv")
		}
		o.sqlite = true
		return sqlite.NewKVStore(o.conns.SQLite, o.opts.Workspace, ns), nil
	default:
		return nil, unknownBackend(o.opts.KV, "kv")
	}
}

func (o *opener) vector(ns string) (rag.VectorStore, error) {
	dim := o.opts.Dimension
	switch o.opts.Vector {
	case BackendMemory, "":
		return memory.NewVectorStore(dim), nil
	case BackendFile:
		p, err := o.path("vdb_" + ns)
		if err != nil {
			return nil, err
		}
		return file.OpenVectorStore(p, dim)
	case BackendPostgres:
		if o.conns.Postgres == nil {
			return nil, missingConn(BackendPostgres, "vector")
		}
		st := postgres.NewVectorStore(o.conns.Postgres, o.opts.Workspace, ns, dim)
		if o.opts.SkipSchema {
			o.dims = append(o.dims, st)
		} else {
			o.schemas = append(o.schemas, st)
		}
		return st, nil
	case BackendSQLite:
		if o.conns.SQLite == nil {
			return nil, missingConn(BackendSQLite, "vector")
		}
		o.sqlite = true
		st := sqlite.NewVectorStore(o.conns.SQLite, o.opts.Workspace, ns, dim)
		o.dims = append(o.dims, st)
		return st, nil
	default:
		return nil, unknownBackend(o.opts.Vector, "vector")
	}
}

func (o *opener) graph() (rag.GraphStore, error) {
	switch o.opts.Graph {
	case BackendMemory, "":
		return memory.NewGraph(), nil
	case BackendFile:
		p, err := o.path("graph_" + rag.NamespaceGraph)
		if err != nil {
			return nil, err
		}
		return file.OpenGraph(p)
	case BackendPostgres:
		if o.conns.Postgres == nil {
			return nil, missingConn(BackendPostgres, "graph")
		}
		st := postgres.NewGraph(o.conns.Postgres, o.opts.Workspace)
		o.schemas = append(o.schemas, st)
		return st, nil
	case BackendFalkorDB:
		if o.conns.FalkorDB == nil {
			return nil, missingConn(BackendFalkorDB, "graph")
		}
		st := falkordb.NewGraph(o.conns.FalkorDB, o.opts.GraphName)
		o.schemas = append(o.schemas, st)
		return st, nil
	case BackendSQLite:
		if o.conns.SQLite == nil {
			return nil, missingConn(BackendSQLite, "graph")
		}
		o.sqlite = true
		return sqlite.NewGraph(o.conns.SQLite, o.opts.Workspace), nil
	default:
		return nil, unknownBackend(o.opts.Graph, "graph")
	}
}

func (o *opener) docStatus() (rag.DocStatusStore, error) {
	switch o.opts.DocStatus {
	case BackendMemory, "":
		return memory.NewDocStatusStore(), nil
	case BackendFile:
		p, err := o.path(rag.NamespaceDocStatus)
		if err != nil {
			return nil, err
		}
		return file.OpenDocStatusStore(p)
	case BackendPostgres:
		if o.conns.Postgres == nil {
			return nil, missingConn(BackendPostgres, "doc_status")
		}
		st := postgres.NewDocStatusStore(o.conns.Postgres, o.opts.Workspace)
		o.schemas = append(o.schemas, st)
		return st, nil
	case BackendRedis:
		if o.conns.Redis == nil {
			return nil, missingConn(BackendRedis, "doc_status")
		}
		return redis.NewDocStatusStore(o.conns.Redis, o.opts.Redis, o.opts.Workspace), nil
	case BackendSQLite:
		if o.conns.SQLite == nil {
			return nil, missingConn(BackendSQLite, "doc_status")
		}
		o.sqlite = true
		return sqlite.NewDocStatusStore(o.conns.SQLite, o.opts.Workspace), nil
	default:
		return nil, unknownBackend(o.opts.DocStatus, "doc_status")
	}
}

func (o *opener) initSchema() error {
	if o.opts.SkipSchema {
		return o.checkDimensions()
	}
	if o.sqlite {
		if err := sqlite.InitSchema(o.ctx, o.conns.SQLite); err != nil {
			return fmt.Errorf("failed to init sqlite schema: %w", err)
		}
	}
	for _, s := range o.schemas {
		if err := s.InitSchema(o.ctx); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return o.checkDimensions()
}

func (o *opener) checkDimensions() error {
	for _, d := range o.dims {
		if err := d.CheckDimension(o.ctx); err != nil {
			return err
		}
	}
	return nil
}
