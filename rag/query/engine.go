package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/cache"
	"github.com/smallnest/graphrag/rag/splitter"
)

// Config holds the stores and models a query Engine reads
type Config struct {
	Chunks              rag.KVStore
	ChunkVectors        rag.VectorStore
	EntityVectors       rag.VectorStore
	RelationshipVectors rag.VectorStore
	Graph               rag.GraphStore
	Embedder            rag.Embedder
	LLM                 rag.LLM
	// Cache may be nil
	Cache     cache.Cache
	Tokenizer splitter.Tokenizer
	Params    rag.ModelParams
	// ExtractKeywords asks the model for keywords when a query gives none
	ExtractKeywords bool
	Logger          log.Logger
}

// Engine answers queries
type Engine struct {
	cfg    Config
	tok    splitter.Tokenizer
	logger log.Logger
}

// New creates a query Engine
func New(cfg Config) *Engine {
	tok := cfg.Tokenizer
	if tok == nil {
		tok = splitter.WhitespaceTokenizer{}
	}
	return &Engine{cfg: cfg, tok: tok, logger: log.OrDefault(cfg.Logger)}
}

// Query answers q. With OnlyNeedContext or OnlyNeedPrompt the context or the
// system prompt is returned instead of calling the model. An empty context
// yields FailResponse.
func (e *Engine) Query(ctx context.Context, q string, p Param) (string, error) {
	p = p.withDefaults()
	start := time.Now()

	qc, err := e.BuildContext(ctx, q, p)
	if err != nil {
		return "", err
	}
	e.logger.Debug("query mode=%s: %d entities, %d relationships, %d communities, %d sources in %v",
		p.Mode, len(qc.Entities), len(qc.Relationships), len(qc.Communities), len(qc.Sources), time.Since(start))

	if p.OnlyNeedContext {
		return qc.String(), nil
	}
	if qc.Empty() {
		return FailResponse, nil
	}

	system := responsePrompt(p.ResponseType, qc.String())
	if p.OnlyNeedPrompt {
		return system, nil
	}

	params := e.cfg.Params
	params.SystemPrompt = system
	params.History = append(append([]rag.Message(nil), params.History...), p.ConversationHistory...)
	return cache.Cached(ctx, e.cfg.Cache, p.NoCache, e.cfg.LLM, q, params, nil)
}

// BuildContext retrieves and budgets the context of q
func (e *Engine) BuildContext(ctx context.Context, q string, p Param) (*Context, error) {
	p = p.withDefaults()

	var qc *Context
	var err error
	switch p.Mode {
	case ModeNaive:
		qc, err = e.naive(ctx, q, p)
	case ModeLocal, ModeGlobal, ModeHybrid:
		hl, ll, kerr := e.keywords(ctx, q, p)
		if kerr != nil {
			return nil, kerr
		}
		switch p.Mode {
		case ModeLocal:
			qc, err = e.local(ctx, ll, p)
		case ModeGlobal:
			qc, err = e.global(ctx, hl, p)
		default:
			qc, err = e.hybrid(ctx, hl, ll, p)
		}
	default:
		return nil, fmt.Errorf("%w: unknown query mode %q", rag.ErrInvalidConfig, p.Mode)
	}
	if err != nil {
		return nil, err
	}
	qc.applyBudgets(p)
	return qc, nil
}

func (e *Engine) hybrid(ctx context.Context, hl, ll string, p Param) (*Context, error) {
	var local, global *Context
	var localErr, globalErr error

	// a failing side must not cancel the other
	var g errgroup.Group
	g.Go(func() error {
		local, localErr = e.local(ctx, ll, p)
		return nil
	})
	g.Go(func() error {
		global, globalErr = e.global(ctx, hl, p)
		return nil
	})
	_ = g.Wait()

	switch {
	case localErr != nil && globalErr != nil:
		return nil, fmt.Errorf("hybrid query failed: %w", errors.Join(localErr, globalErr))
	case localErr != nil:
		e.logger.Warn("hybrid query: local retrieval failed, using global only: %v", localErr)
		return global, nil
	case globalErr != nil:
		e.logger.Warn("hybrid query: global retrieval failed, using local only: %v", globalErr)
		return local, nil
	}
	local.merge(global)
	return local, nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.cfg.Embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("failed to embed query: %w", rag.ErrModelCall)
	}
	return vecs[0], nil
}

type keywordAnswer struct {
	HighLevel []string `json:"high_level_keywords"`
	LowLevel  []string `json:"low_level_keywords"`
}

// keywords returns the high- and low-level search strings of a query.
// Given keywords win; otherwise the model is asked when enabled; the raw
// query is the fallback for an empty or unparsable answer.
func (e *Engine) keywords(ctx context.Context, q string, p Param) (string, string, error) {
	hl, ll := strings.Join(p.HLKeywords, ", "), strings.Join(p.LLKeywords, ", ")
	if hl != "" || ll != "" || !e.cfg.ExtractKeywords || e.cfg.LLM == nil {
		return orQuery(hl, q), orQuery(ll, q), nil
	}

	accept := func(s string) bool { _, ok := parseKeywords(s); return ok }
	out, err := cache.Cached(ctx, e.cfg.Cache, p.NoCache, e.cfg.LLM, fmt.Sprintf(KeywordsPrompt, q), e.cfg.Params, accept)
	if err != nil {
		return "", "", fmt.Errorf("failed to extract keywords: %w", err)
	}
	kw, ok := parseKeywords(out)
	if !ok {
		e.logger.Warn("keyword answer unparsable, searching with the raw query")
		return q, q, nil
	}
	return orQuery(strings.Join(kw.HighLevel, ", "), q), orQuery(strings.Join(kw.LowLevel, ", "), q), nil
}

func parseKeywords(s string) (keywordAnswer, bool) {
	var kw keywordAnswer
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return kw, false
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &kw); err != nil {
		return kw, false
	}
	return kw, true
}

func orQuery(kw, q string) string {
	if strings.TrimSpace(kw) == "" {
		return q
	}
	return kw
}
