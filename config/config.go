// Package config loads the graphrag configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// a .env file, then the environment. Environment keys carry the GRAPHRAG_
// prefix; the unprefixed names (POSTGRES_HOST, OPENAI_API_KEY, ...) are
// accepted when the prefixed key is absent.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallnest/graphrag/rag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment keys
const EnvPrefix = "GRAPHRAG"

// Config holds all settings of the engine, its stores and its models
type Config struct {
	Workspace  string `yaml:"workspace"`
	WorkingDir string `yaml:"working_dir"`

	Storage    StorageConfig    `yaml:"storage"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	LLM        ModelConfig      `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Cache      CacheConfig      `yaml:"cache"`
	Query      QueryConfig      `yaml:"query"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig selects a backend per capability
type StorageConfig struct {
	KV        string `yaml:"kv"`
	Vector    string `yaml:"vector"`
	Graph     string `yaml:"graph"`
	DocStatus string `yaml:"doc_status"`
	// GraphName is the FalkorDB graph key
	GraphName string `yaml:"graph_name"`
}

// PostgresConfig is the shared postgres pool. URL wins over the parts.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig is the shared redis client, also used for FalkorDB
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SQLiteConfig is the shared sqlite database
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig configures the completion model
type ModelConfig struct {
	// Provider is openai or langchain
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxAsync          int           `yaml:"max_async"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding model
type EmbeddingConfig struct {
	// Provider is openai, langchain or mock
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxAsync  int    `yaml:"max_async"`
	BatchNum  int    `yaml:"batch_num"`
}

// ChunkingConfig configures the token chunker
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	// Encoding is a tiktoken encoding, empty splits on whitespace
	Encoding string `yaml:"encoding"`
}

// ExtractionConfig configures entity extraction
type ExtractionConfig struct {
	EntityTypes      []string `yaml:"entity_types"`
	Language         string   `yaml:"language"`
	MaxGleaning      int      `yaml:"max_gleaning"`
	MaxParseRetries  int      `yaml:"max_parse_retries"`
	SummaryMaxTokens int      `yaml:"summary_max_tokens"`
}

// IngestConfig configures document processing
type IngestConfig struct {
	MaxParallelInsert int `yaml:"max_parallel_insert"`
	// InputDir is scanned by the watch command
	InputDir string `yaml:"input_dir"`
	// Schedule is the cron expression of the watch command
	Schedule string `yaml:"schedule"`
}

// CacheConfig configures the LLM response cache
type CacheConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	ForExtraction *bool         `yaml:"for_extraction"`
	Size          int           `yaml:"size"`
	TTL           time.Duration `yaml:"ttl"`
}

// EnabledOrDefault reports whether the cache is used; defaults to true
func (c CacheConfig) EnabledOrDefault() bool {
	return c.Enabled == nil || *c.Enabled
}

// ForExtractionOrDefault reports whether extraction prompts are cached; defaults to true
func (c CacheConfig) ForExtractionOrDefault() bool {
	return c.ForExtraction == nil || *c.ForExtraction
}

// QueryConfig holds query defaults
type QueryConfig struct {
	Mode                     string `yaml:"mode"`
	TopK                     int    `yaml:"top_k"`
	ChunkTopK                int    `yaml:"chunk_top_k"`
	MaxTokenForTextUnit      int    `yaml:"max_token_for_text_unit"`
	MaxTokenForLocalContext  int    `yaml:"max_token_for_local_context"`
	MaxTokenForGlobalContext int    `yaml:"max_token_for_global_context"`
	MaxTotalTokens           int    `yaml:"max_total_tokens"`
	ResponseType             string `yaml:"response_type"`
	ExtractKeywords          *bool  `yaml:"extract_keywords"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is text, golog or json
	Format string `yaml:"format"`
}

// Load builds the configuration from path (may be empty), the .env file in
// the working directory and the environment, then validates it
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(".env"); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile merges the YAML file at path into c
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save writes c as YAML to path
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var backends = map[string]map[string]bool{
	"kv":         {"memory": true, "file": true, "postgres": true, "redis": true, "sqlite": true},
	"vector":     {"memory": true, "file": true, "postgres": true, "sqlite": true},
	"graph":      {"memory": true, "file": true, "postgres": true, "falkordb": true, "sqlite": true},
	"doc_status": {"memory": true, "file": true, "postgres": true, "redis": true, "sqlite": true},
}

// Validate checks c once; every problem is reported and matches rag.ErrInvalidConfig
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, v ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{rag.ErrInvalidConfig}, v...)...))
	}

	selected := map[string]string{
		"kv": c.Storage.KV, "vector": c.Storage.Vector, "graph": c.Storage.Graph, "doc_status": c.Storage.DocStatus,
	}
	for _, capability := range []string{"kv", "vector", "graph", "doc_status"} {
		if b := selected[capability]; !backends[capability][b] {
			fail("unsupported %s storage %q", capability, b)
		}
	}
	if c.uses("postgres") && c.Postgres.URL == "" && c.Postgres.Host == "" {
		fail("postgres storage needs postgres.url or postgres.host")
	}
	if (c.uses("redis") || c.uses("falkordb")) && c.Redis.Addr == "" {
		fail("redis and falkordb storage need redis.addr")
	}
	if c.uses("sqlite") && c.SQLite.Path == "" {
		fail("sqlite storage needs sqlite.path")
	}
	if c.uses("file") && c.WorkingDir == "" {
		fail("file storage needs working_dir")
	}

	switch c.LLM.Provider {
	case "openai", "langchain":
	default:
		fail("unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "langchain", "mock":
	default:
		fail("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		fail("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		fail("chunk overlap %d must be in [0, %d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.LLM.MaxAsync <= 0 || c.Embedding.MaxAsync <= 0 || c.Embedding.BatchNum <= 0 || c.Ingest.MaxParallelInsert <= 0 {
		fail("concurrency limits and batch sizes must be positive")
	}
	if c.Query.Mode != "" {
		switch strings.ToLower(c.Query.Mode) {
		case "naive", "local", "global", "hybrid":
		default:
			fail("unknown query mode %q", c.Query.Mode)
		}
	}
	return errors.Join(errs...)
}

func (c *Config) uses(backend string) bool {
	s := c.Storage
	return s.KV == backend || s.Vector == backend || s.Graph == backend || s.DocStatus == backend
}
