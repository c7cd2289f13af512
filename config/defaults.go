package config

import (
	"time"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/query"
)

// Default returns a configuration that runs fully in memory with OpenAI models
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		Workspace:  rag.DefaultWorkspace,
		WorkingDir: "./rag_storage",
		Storage: StorageConfig{
			KV:        engine.BackendMemory,
			Vector:    engine.BackendMemory,
			Graph:     engine.BackendMemory,
			DocStatus: engine.BackendMemory,
		},
		Postgres: PostgresConfig{Port: 5432, User: "postgres", Database: "graphrag", MaxConns: 10},
		Redis:    RedisConfig{Prefix: "graphrag:"},
		SQLite:   SQLiteConfig{Path: "./rag_storage/graphrag.db"},
		LLM: ModelConfig{
			Provider: "openai",
			Model:    llm.DefaultChatModel,
			MaxAsync: ec.LLMMaxAsync,
			Timeout:  3 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     string(llm.DefaultEmbeddingModel),
			Dimension: llm.DefaultEmbeddingDimension,
			MaxTokens: ec.EmbeddingMaxTokens,
			MaxAsync:  ec.EmbeddingMaxAsync,
			BatchNum:  ec.EmbeddingBatchNum,
		},
		Chunking: ChunkingConfig{
			Size:     ec.ChunkTokenSize,
			Overlap:  ec.ChunkOverlapTokenSize,
			Encoding: "cl100k_base",
		},
		Extraction: ExtractionConfig{
			EntityTypes:      append([]string(nil), ec.EntityTypes...),
			Language:         ec.Language,
			MaxGleaning:      ec.EntityExtractMaxGleaning,
			MaxParseRetries:  ec.MaxParseRetries,
			SummaryMaxTokens: ec.SummaryMaxTokens,
		},
		Ingest: IngestConfig{
			MaxParallelInsert: ec.MaxParallelInsert,
			InputDir:          "./inputs",
			Schedule:          "@every 1m",
		},
		Cache: CacheConfig{Size: ec.CacheSize},
		Query: QueryConfig{
			Mode:                     string(query.ModeHybrid),
			TopK:                     query.DefaultTopK,
			ChunkTopK:                query.DefaultChunkTopK,
			MaxTokenForTextUnit:      query.DefaultMaxTokenForTextUnit,
			MaxTokenForLocalContext:  query.DefaultMaxTokenForLocalContext,
			MaxTokenForGlobalContext: query.DefaultMaxTokenForGlobalContext,
			MaxTotalTokens:           query.DefaultMaxTotalTokens,
			ResponseType:             query.DefaultResponseType,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// ApplyDefaults fills zero values left by a sparse file or environment
func ApplyDefaults(c *Config) {
	d := Default()
	if c.Workspace == "" {
		c.Workspace = d.Workspace
	}
	fill(&c.Storage.KV, d.Storage.KV)
	fill(&c.Storage.Vector, d.Storage.Vector)
	fill(&c.Storage.Graph, d.Storage.Graph)
	fill(&c.Storage.DocStatus, d.Storage.DocStatus)
	fill(&c.LLM.Provider, d.LLM.Provider)
	fill(&c.LLM.Model, d.LLM.Model)
	fill(&c.LLM.MaxAsync, d.LLM.MaxAsync)
	fill(&c.Embedding.Provider, d.Embedding.Provider)
	fill(&c.Embedding.Model, d.Embedding.Model)
	fill(&c.Embedding.MaxAsync, d.Embedding.MaxAsync)
	fill(&c.Embedding.BatchNum, d.Embedding.BatchNum)
	fill(&c.Chunking.Size, d.Chunking.Size)
	fill(&c.Ingest.MaxParallelInsert, d.Ingest.MaxParallelInsert)
	fill(&c.Ingest.Schedule, d.Ingest.Schedule)
	fill(&c.Cache.Size, d.Cache.Size)
	fill(&c.Query.Mode, d.Query.Mode)
	fill(&c.Log.Level, d.Log.Level)
	fill(&c.Log.Format, d.Log.Format)
	if len(c.Extraction.EntityTypes) == 0 {
		c.Extraction.EntityTypes = d.Extraction.EntityTypes
	}
	fill(&c.Extraction.Language, d.Extraction.Language)
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.LLM.BaseURL
	}
}

func fill[T comparable](dst *T, def T) {
	var zero T
	if *dst == zero {
		*dst = def
	}
}
