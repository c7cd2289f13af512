package config

import (
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/query"
	"github.com/smallnest/graphrag/rag/store/postgres"
	"github.com/smallnest/graphrag/rag/store/redis"
)

// EngineConfig converts c into engine settings using logger
func (c *Config) EngineConfig(logger log.Logger) engine.Config {
	ec := engine.DefaultConfig()
	ec.ChunkTokenSize = c.Chunking.Size
	ec.ChunkOverlapTokenSize = c.Chunking.Overlap
	ec.TiktokenEncoding = c.Chunking.Encoding
	ec.EntityTypes = c.Extraction.EntityTypes
	ec.Language = c.Extraction.Language
	ec.EntityExtractMaxGleaning = c.Extraction.MaxGleaning
	ec.MaxParseRetries = c.Extraction.MaxParseRetries
	if c.Extraction.SummaryMaxTokens > 0 {
		ec.SummaryMaxTokens = c.Extraction.SummaryMaxTokens
	}
	ec.LLMMaxAsync = c.LLM.MaxAsync
	ec.LLMRequestsPerSecond = c.LLM.RequestsPerSecond
	ec.EmbeddingMaxAsync = c.Embedding.MaxAsync
	ec.EmbeddingBatchNum = c.Embedding.BatchNum
	ec.EmbeddingMaxTokens = c.Embedding.MaxTokens
	ec.MaxParallelInsert = c.Ingest.MaxParallelInsert
	ec.EnableLLMCache = c.Cache.EnabledOrDefault()
	ec.EnableLLMCacheForExtract = c.Cache.ForExtractionOrDefault()
	ec.CacheSize = c.Cache.Size
	ec.CacheTTL = c.Cache.TTL
	ec.ExtractKeywords = c.Query.ExtractKeywords == nil || *c.Query.ExtractKeywords
	ec.Params = rag.ModelParams{
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
	if c.LLM.Provider == "openai" {
		ec.Retry.Retryable = llm.IsRetryable
	}
	ec.Logger = logger
	return ec
}

// StorageOptions converts c into backend selection for engine.OpenStorage
func (c *Config) StorageOptions() engine.StorageOptions {
	return engine.StorageOptions{
		KV:        c.Storage.KV,
		Vector:    c.Storage.Vector,
		Graph:     c.Storage.Graph,
		DocStatus: c.Storage.DocStatus,
		Workspace: c.Workspace,
		Dimension: c.Embedding.Dimension,
		Dir:       c.WorkingDir,
		GraphName: c.Storage.GraphName,
		Redis:     c.RedisOptions(),
		CacheTTL:  c.Cache.TTL,
	}
}

// RedisOptions returns the client options of the shared redis connection
func (c *Config) RedisOptions() redis.Options {
	return redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
	}
}

// QueryParam returns the configured query defaults for mode; an empty mode
// takes the configured one
func (c *Config) QueryParam(mode string) (query.Param, error) {
	if mode == "" {
		mode = c.Query.Mode
	}
	m, err := query.ParseMode(mode)
	if err != nil {
		return query.Param{}, err
	}
	return query.Param{
		Mode:                     m,
		TopK:                     c.Query.TopK,
		ChunkTopK:                c.Query.ChunkTopK,
		MaxTokenForTextUnit:      c.Query.MaxTokenForTextUnit,
		MaxTokenForLocalContext:  c.Query.MaxTokenForLocalContext,
		MaxTokenForGlobalContext: c.Query.MaxTokenForGlobalContext,
		MaxTotalTokens:           c.Query.MaxTotalTokens,
		ResponseType:             c.Query.ResponseType,
	}, nil
}

// PostgresConnString returns postgres.url or the URL built from its parts
func (c *Config) PostgresConnString() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	p := c.Postgres
	return postgres.ConnString(p.Host, p.Port, p.User, p.Password, p.Database)
}

// Logger builds the logger selected by log.format
func (c *Config) Logger() (log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return log.NewDefaultLogger(level), nil
	case "golog":
		return log.NewGolog(level), nil
	case "json", "zap":
		z, err := log.NewProductionZapLogger(level, level == log.LogLevelDebug)
		if err != nil {
			return nil, fmt.Errorf("failed to create zap logger: %w", err)
		}
		return z, nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", rag.ErrInvalidConfig, c.Log.Format)
	}
}
