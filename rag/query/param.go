package query

import (
	"fmt"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// Mode selects the retrieval strategy
type Mode string

const (
	ModeNaive  Mode = "naive"
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
)

// Modes lists every mode in display order
var Modes = []Mode{ModeNaive, ModeLocal, ModeGlobal, ModeHybrid}

// ParseMode maps a name to a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown query mode %q", rag.ErrInvalidConfig, s)
}

// Default budgets
const (
	DefaultTopK                     = 60
	DefaultChunkTopK                = 10
	DefaultMaxTokenForTextUnit      = 4000
	DefaultMaxTokenForLocalContext  = 4000
	DefaultMaxTokenForGlobalContext = 4000
	DefaultMaxTotalTokens           = 12000
	DefaultResponseType             = "Multiple Paragraphs"
)

// Param configures one query. Zero values take the defaults.
type Param struct {
	Mode      Mode `json:"mode"`
	TopK      int  `json:"top_k,omitempty"`
	ChunkTopK int  `json:"chunk_top_k,omitempty"`

	MaxTokenForTextUnit      int `json:"max_token_for_text_unit,omitempty"`
	MaxTokenForLocalContext  int `json:"max_token_for_local_context,omitempty"`
	MaxTokenForGlobalContext int `json:"max_token_for_global_context,omitempty"`
	MaxTotalTokens           int `json:"max_total_tokens,omitempty"`

	// OnlyNeedContext returns the assembled context instead of an answer
	OnlyNeedContext bool `json:"only_need_context,omitempty"`
	// OnlyNeedPrompt returns the final system prompt instead of an answer
	OnlyNeedPrompt bool   `json:"only_need_prompt,omitempty"`
	ResponseType   string `json:"response_type,omitempty"`
	NoCache        bool   `json:"no_cache,omitempty"`

	HLKeywords          []string      `json:"hl_keywords,omitempty"`
	LLKeywords          []string      `json:"ll_keywords,omitempty"`
	ConversationHistory []rag.Message `json:"conversation_history,omitempty"`
}

func (p Param) withDefaults() Param {
	if p.Mode == "" {
		p.Mode = ModeHybrid
	}
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.ChunkTopK <= 0 {
		p.ChunkTopK = DefaultChunkTopK
	}
	if p.MaxTokenForTextUnit <= 0 {
		p.MaxTokenForTextUnit = DefaultMaxTokenForTextUnit
	}
	if p.MaxTokenForLocalContext <= 0 {
		p.MaxTokenForLocalContext = DefaultMaxTokenForLocalContext
	}
	if p.MaxTokenForGlobalContext <= 0 {
		p.MaxTokenForGlobalContext = DefaultMaxTokenForGlobalContext
	}
	if p.MaxTotalTokens <= 0 {
		p.MaxTotalTokens = DefaultMaxTotalTokens
	}
	if p.ResponseType == "" {
		p.ResponseType = DefaultResponseType
	}
	return p
}
