package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// env mirrors the settings that may come from the environment. Unset keys
// stay nil and leave the loaded value alone.
type env struct {
	Workspace  *string `envconfig:"WORKSPACE"`
	WorkingDir *string `envconfig:"WORKING_DIR"`

	KVStorage        *string `envconfig:"KV_STORAGE"`
	VectorStorage    *string `envconfig:"VECTOR_STORAGE"`
	GraphStorage     *string `envconfig:"GRAPH_STORAGE"`
	DocStatusStorage *string `envconfig:"DOC_STATUS_STORAGE"`
	GraphName        *string `envconfig:"GRAPH_NAME"`

	DatabaseURL      *string `envconfig:"DATABASE_URL"`
	PostgresHost     *string `envconfig:"POSTGRES_HOST"`
	PostgresPort     *int    `envconfig:"POSTGRES_PORT"`
	PostgresUser     *string `envconfig:"POSTGRES_USER"`
	PostgresPassword *string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDatabase *string `envconfig:"POSTGRES_DATABASE"`
	PostgresMaxConns *int32  `envconfig:"POSTGRES_MAX_CONNS"`

	RedisAddr     *string `envconfig:"REDIS_ADDR"`
	RedisPassword *string `envconfig:"REDIS_PASSWORD"`
	RedisDB       *int    `envconfig:"REDIS_DB"`

	SQLitePath *string `envconfig:"SQLITE_PATH"`

	LLMProvider *string        `envconfig:"LLM_PROVIDER"`
	LLMModel    *string        `envconfig:"LLM_MODEL"`
	LLMBaseURL  *string        `envconfig:"LLM_BASE_URL"`
	APIKey      *string        `envconfig:"OPENAI_API_KEY"`
	MaxAsync    *int           `envconfig:"MAX_ASYNC"`
	LLMTimeout  *time.Duration `envconfig:"LLM_TIMEOUT"`

	EmbeddingProvider *string `envconfig:"EMBEDDING_PROVIDER"`
	EmbeddingModel    *string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBaseURL  *string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingDim      *int    `envconfig:"EMBEDDING_DIM"`
	EmbeddingMaxAsync *int    `envconfig:"EMBEDDING_FUNC_MAX_ASYNC"`
	EmbeddingBatchNum *int    `envconfig:"EMBEDDING_BATCH_NUM"`

	ChunkSize    *int    `envconfig:"CHUNK_SIZE"`
	ChunkOverlap *int    `envconfig:"CHUNK_OVERLAP_SIZE"`
	Encoding     *string `envconfig:"TIKTOKEN_ENCODING"`

	Language    *string `envconfig:"SUMMARY_LANGUAGE"`
	EntityTypes *string `envconfig:"ENTITY_TYPES"`
	MaxGleaning *int    `envconfig:"MAX_GLEANING"`

	MaxParallelInsert *int    `envconfig:"MAX_PARALLEL_INSERT"`
	InputDir          *string `envconfig:"INPUT_DIR"`

	EnableLLMCache *bool          `envconfig:"ENABLE_LLM_CACHE"`
	CacheTTL       *time.Duration `envconfig:"LLM_CACHE_TTL"`

	TopK      *int `envconfig:"TOP_K"`
	ChunkTopK *int `envconfig:"CHUNK_TOP_K"`

	LogLevel  *string `envconfig:"LOG_LEVEL"`
	LogFormat *string `envconfig:"LOG_FORMAT"`
}

// LoadEnv reads dotenv (a missing file is fine) and applies the environment to c
func (c *Config) LoadEnv(dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	e.apply(c)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (e *env) apply(c *Config) {
	set(&c.Workspace, e.Workspace)
	set(&c.WorkingDir, e.WorkingDir)

	set(&c.Storage.KV, e.KVStorage)
	set(&c.Storage.Vector, e.VectorStorage)
	set(&c.Storage.Graph, e.GraphStorage)
	set(&c.Storage.DocStatus, e.DocStatusStorage)
	set(&c.Storage.GraphName, e.GraphName)

	set(&c.Postgres.URL, e.DatabaseURL)
	set(&c.Postgres.Host, e.PostgresHost)
	set(&c.Postgres.Port, e.PostgresPort)
	set(&c.Postgres.User, e.PostgresUser)
	set(&c.Postgres.Password, e.PostgresPassword)
	set(&c.Postgres.Database, e.PostgresDatabase)
	set(&c.Postgres.MaxConns, e.PostgresMaxConns)

	set(&c.Redis.Addr, e.RedisAddr)
	set(&c.Redis.Password, e.RedisPassword)
	set(&c.Redis.DB, e.RedisDB)

	set(&c.SQLite.Path, e.SQLitePath)

	set(&c.LLM.Provider, e.LLMProvider)
	set(&c.LLM.Model, e.LLMModel)
	set(&c.LLM.BaseURL, e.LLMBaseURL)
	set(&c.LLM.APIKey, e.APIKey)
	set(&c.LLM.MaxAsync, e.MaxAsync)
	set(&c.LLM.Timeout, e.LLMTimeout)

	set(&c.Embedding.Provider, e.EmbeddingProvider)
	set(&c.Embedding.Model, e.EmbeddingModel)
	set(&c.Embedding.BaseURL, e.EmbeddingBaseURL)
	set(&c.Embedding.Dimension, e.EmbeddingDim)
	set(&c.Embedding.MaxAsync, e.EmbeddingMaxAsync)
	set(&c.Embedding.BatchNum, e.EmbeddingBatchNum)
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}

	set(&c.Chunking.Size, e.ChunkSize)
	set(&c.Chunking.Overlap, e.ChunkOverlap)
	set(&c.Chunking.Encoding, e.Encoding)

	set(&c.Extraction.Language, e.Language)
	set(&c.Extraction.MaxGleaning, e.MaxGleaning)
	if e.EntityTypes != nil {
		c.Extraction.EntityTypes = splitList(*e.EntityTypes)
	}

	set(&c.Ingest.MaxParallelInsert, e.MaxParallelInsert)
	set(&c.Ingest.InputDir, e.InputDir)

	if e.EnableLLMCache != nil {
		c.Cache.Enabled = e.EnableLLMCache
	}
	set(&c.Cache.TTL, e.CacheTTL)

	set(&c.Query.TopK, e.TopK)
	set(&c.Query.ChunkTopK, e.ChunkTopK)

	set(&c.Log.Level, e.LogLevel)
	set(&c.Log.Format, e.LogFormat)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
