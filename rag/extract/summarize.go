package extract

import (
	"context"
	"strings"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/cache"
	"github.com/smallnest/graphrag/rag/splitter"
)

// Summarizer condenses merged descriptions that grew past MaxTokens
type Summarizer struct {
	Model     rag.LLM
	Cache     cache.Cache
	Tokenizer splitter.Tokenizer
	MaxTokens int
	Language  string
	Params    rag.ModelParams
}

// Summarize returns description unchanged when it fits, otherwise the
// model's summary of its parts
func (s *Summarizer) Summarize(ctx context.Context, name, description string) (string, error) {
	if s == nil || s.Model == nil || s.MaxTokens <= 0 {
		return description, nil
	}
	tok := s.Tokenizer
	if tok == nil {
		tok = splitter.WhitespaceTokenizer{}
	}
	if splitter.CountTokens(tok, description) <= s.MaxTokens {
		return description, nil
	}

	lang := s.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	prompt := summaryPrompt(lang, name, strings.Split(description, rag.FieldSep))
	out, err := cache.Cached(ctx, s.Cache, false, s.Model, prompt, s.Params, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
