package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/cache"
)

// Config configures an Extractor
type Config struct {
	EntityTypes     []string
	Language        string
	MaxGleaning     int
	MaxParseRetries int
	// DisableCache skips the response cache for extraction prompts
	DisableCache bool
	Params       rag.ModelParams
	Logger       log.Logger
}

// DefaultConfig returns the extraction defaults
func DefaultConfig() Config {
	return Config{
		EntityTypes:     DefaultEntityTypes,
		Language:        DefaultLanguage,
		MaxParseRetries: 2,
	}
}

// Extractor prompts the model for the facts of one chunk
type Extractor struct {
	model  rag.LLM
	cache  cache.Cache
	config Config
	logger log.Logger
}

// NewExtractor creates an Extractor; c may be nil
func NewExtractor(model rag.LLM, c cache.Cache, config Config) *Extractor {
	if len(config.EntityTypes) == 0 {
		config.EntityTypes = DefaultEntityTypes
	}
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	if config.MaxParseRetries < 0 {
		config.MaxParseRetries = 0
	}
	return &Extractor{model: model, cache: c, config: config, logger: log.OrDefault(config.Logger)}
}

// Extract returns the contribution of chunk. It fails with
// rag.ErrExtractionParse when no answer could be parsed after all re-prompts;
// model and context errors are returned as they are.
func (x *Extractor) Extract(ctx context.Context, chunk rag.Chunk) (*Contribution, error) {
	prompt := extractionPrompt(x.config.EntityTypes, x.config.Language, chunk.Content)

	answer, first, err := x.completeParsed(ctx, prompt, x.config.Params)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
	}
	results := []*Result{first}

	history := append([]rag.Message(nil), x.config.Params.History...)
	history = append(history, rag.Message{Role: "user", Content: prompt}, rag.Message{Role: "assistant", Content: answer})
	for i := 0; i < x.config.MaxGleaning; i++ {
		params := x.config.Params
		params.History = history

		more, extra, err := x.completeParsed(ctx, GleaningPrompt, params)
		if errors.Is(err, rag.ErrExtractionParse) {
			x.logger.Warn("gleaning %d of chunk %s unparsable, keeping earlier results", i+1, chunk.ID)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		if len(extra.Entities) == 0 && len(extra.Relationships) == 0 {
			break
		}
		results = append(results, extra)
		history = append(history, rag.Message{Role: "user", Content: GleaningPrompt}, rag.Message{Role: "assistant", Content: more})
	}

	c := NewContribution(chunk, results...)
	x.logger.Debug("chunk %s: %d entities, %d relationships", chunk.ID, len(c.Entities), len(c.Relationships))
	return c, nil
}

// completeParsed asks until the answer parses or the re-prompts run out
func (x *Extractor) completeParsed(ctx context.Context, prompt string, params rag.ModelParams) (string, *Result, error) {
	current := prompt
	var lastErr error
	for attempt := 0; attempt <= x.config.MaxParseRetries; attempt++ {
		answer, err := cache.Cached(ctx, x.cache, x.config.DisableCache, x.model, current, params, parsable)
		if err != nil {
			return "", nil, err
		}
		result, err := Parse(answer)
		if err == nil {
			return answer, result, nil
		}
		lastErr = err
		x.logger.Warn("extraction answer unparsable (attempt %d): %v", attempt+1, err)
		current = correctionPrompt(prompt, answer, err)
	}
	return "", nil, lastErr
}
