package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/store/postgres"
	"github.com/smallnest/graphrag/rag/store/redis"
	"github.com/smallnest/graphrag/rag/store/sqlite"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// Models builds the completion and embedding models selected by c
func (c *Config) Models() (rag.LLM, rag.Embedder, error) {
	var model rag.LLM
	switch c.LLM.Provider {
	case "openai":
		model = llm.NewOpenAI(llm.NewOpenAIClient(c.LLM.APIKey, c.LLM.BaseURL), c.LLM.Model)
	case "langchain":
		lc, err := c.langchain(c.LLM.APIKey, c.LLM.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		model = llm.NewLangChainLLM(lc)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported llm provider %q", rag.ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.Timeout > 0 {
		model = withTimeout(model, c)
	}

	var embedder rag.Embedder
	switch c.Embedding.Provider {
	case "openai":
		client := llm.NewOpenAIClient(c.Embedding.APIKey, c.Embedding.BaseURL)
		embedder = llm.NewOpenAIEmbedder(client, c.Embedding.Model, c.Embedding.Dimension)
	case "langchain":
		lc, err := c.langchain(c.Embedding.APIKey, c.Embedding.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		e, err := embeddings.NewEmbedder(lc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = llm.NewLangChainEmbedder(e, c.Embedding.Dimension)
	case "mock":
		embedder = llm.NewMockEmbedder(c.Embedding.Dimension)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported embedding provider %q", rag.ErrInvalidConfig, c.Embedding.Provider)
	}
	return model, embedder, nil
}

func (c *Config) langchain(apiKey, baseURL string) (*lcopenai.LLM, error) {
	opts := []lcopenai.Option{
		lcopenai.WithModel(c.LLM.Model),
		lcopenai.WithEmbeddingModel(c.Embedding.Model),
	}
	if apiKey != "" {
		opts = append(opts, lcopenai.WithToken(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}
	lc, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}
	return lc, nil
}

func withTimeout(model rag.LLM, c *Config) rag.LLM {
	timeout := c.LLM.Timeout
	return rag.LLMFunc(func(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return model.Complete(ctx, prompt, params)
	})
}

// Runtime is an engine together with the connections it was opened on
type Runtime struct {
	Config  *Config
	Engine  *engine.Engine
	Storage *engine.Storage
	Logger  log.Logger

	closers []func() error
}

// Close releases the stores and then the shared connections
func (r *Runtime) Close() error {
	var errs []error
	if r.Storage != nil {
		errs = append(errs, r.Storage.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// Connect opens one shared connection per backend used by c
func (c *Config) Connect(ctx context.Context) (engine.Connections, []func() error, error) {
	var conns engine.Connections
	var closers []func() error
	fail := func(err error) (engine.Connections, []func() error, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return engine.Connections{}, nil, err
	}

	if c.uses(engine.BackendPostgres) {
		pool, err := postgres.NewPool(ctx, postgres.Options{ConnString: c.PostgresConnString(), MaxConns: c.Postgres.MaxConns})
		if err != nil {
			return fail(err)
		}
		conns.Postgres = pool
		closers = append(closers, func() error { pool.Close(); return nil })
	}
	if c.uses(engine.BackendRedis) || c.uses(engine.BackendFalkorDB) {
		client, err := redis.NewClient(ctx, c.RedisOptions())
		if err != nil {
			return fail(err)
		}
		conns.Redis = client
		closers = append(closers, client.Close)
	}
	if c.uses(engine.BackendSQLite) {
		db, err := openSQLite(c.SQLite.Path)
		if err != nil {
			return fail(err)
		}
		conns.SQLite = db
		closers = append(closers, db.Close)
	}
	return conns, closers, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}
	return sqlite.Open(path)
}

// Open builds the logger, models, connections, stores and engine described by c
func Open(ctx context.Context, c *Config) (*Runtime, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	model, embedder, err := c.Models()
	if err != nil {
		return nil, err
	}
	return OpenWithModels(ctx, c, logger, model, embedder)
}

// OpenWithModels is Open with caller supplied models
func OpenWithModels(ctx context.Context, c *Config, logger log.Logger, model rag.LLM, embedder rag.Embedder) (*Runtime, error) {
	conns, closers, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: c, Logger: logger, closers: closers}

	rt.Storage, err = engine.OpenStorage(ctx, c.StorageOptions(), conns)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	rt.Engine, err = engine.New(c.EngineConfig(logger), rt.Storage, model, embedder)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	logger.Info("graphrag workspace %q ready (kv=%s vector=%s graph=%s doc_status=%s)",
		c.Workspace, c.Storage.KV, c.Storage.Vector, c.Storage.Graph, c.Storage.DocStatus)
	return rt, nil
}
