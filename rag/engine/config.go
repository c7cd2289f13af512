package engine

import (
	"fmt"
	"time"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/extract"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/splitter"
)

// Config configures an Engine
type Config struct {
	ChunkTokenSize        int
	ChunkOverlapTokenSize int
	// TiktokenEncoding selects a BPE tokenizer, empty splits on whitespace
	TiktokenEncoding string

	EntityTypes              []string
	Language                 string
	EntityExtractMaxGleaning int
	MaxParseRetries          int
	// SummaryMaxTokens bounds merged descriptions before they are summarized
	SummaryMaxTokens int

	LLMMaxAsync          int
	LLMRequestsPerSecond float64
	EmbeddingMaxAsync    int
	EmbeddingBatchNum    int
	// EmbeddingMaxTokens truncates texts before embedding, zero disables
	EmbeddingMaxTokens int
	MaxParallelInsert  int

	EnableLLMCache           bool
	EnableLLMCacheForExtract bool
	// CacheSize bounds an in-process cache used when the storage has no cache store
	CacheSize int
	CacheTTL  time.Duration

	// ExtractKeywords asks the model for query keywords
	ExtractKeywords bool
	Retry           llm.RetryConfig
	Params          rag.ModelParams
	Logger          log.Logger
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		ChunkTokenSize:           splitter.DefaultChunkTokenSize,
		ChunkOverlapTokenSize:    splitter.DefaultOverlapTokenSize,
		EntityTypes:              extract.DefaultEntityTypes,
		Language:                 extract.DefaultLanguage,
		EntityExtractMaxGleaning: 1,
		MaxParseRetries:          2,
		SummaryMaxTokens:         500,
		LLMMaxAsync:              4,
		EmbeddingMaxAsync:        16,
		EmbeddingBatchNum:        32,
		EmbeddingMaxTokens:       8192,
		MaxParallelInsert:        2,
		EnableLLMCache:           true,
		EnableLLMCacheForExtract: true,
		CacheSize:                1024,
		ExtractKeywords:          true,
		Retry:                    llm.DefaultRetryConfig(),
	}
}

func (c *Config) validate() error {
	if c.LLMMaxAsync <= 0 {
		return fmt.Errorf("%w: llm max async must be positive, got %d", rag.ErrInvalidConfig, c.LLMMaxAsync)
	}
	if c.EmbeddingMaxAsync <= 0 {
		return fmt.Errorf("%w: embedding max async must be positive, got %d", rag.ErrInvalidConfig, c.EmbeddingMaxAsync)
	}
	if c.EmbeddingBatchNum <= 0 {
		return fmt.Errorf("%w: embedding batch size must be positive, got %d", rag.ErrInvalidConfig, c.EmbeddingBatchNum)
	}
	if c.MaxParallelInsert <= 0 {
		return fmt.Errorf("%w: max parallel insert must be positive, got %d", rag.ErrInvalidConfig, c.MaxParallelInsert)
	}
	if c.EntityExtractMaxGleaning < 0 || c.MaxParseRetries < 0 {
		return fmt.Errorf("%w: gleaning and parse retries must not be negative", rag.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) tokenizer() (splitter.Tokenizer, error) {
	if c.TiktokenEncoding == "" {
		return splitter.WhitespaceTokenizer{}, nil
	}
	tok, err := splitter.NewTiktokenTokenizer(c.TiktokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrInvalidConfig, err)
	}
	return tok, nil
}
