// Package cache memoizes LLM completions keyed by prompt and model parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
)

// Cache stores completion texts by key
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, text string) error
}

type loggedCache struct {
	Cache
	logger log.Logger
}

// WithLogger makes Cached report failures of c to logger
func WithLogger(c Cache, logger log.Logger) Cache {
	if c == nil {
		return nil
	}
	return &loggedCache{Cache: c, logger: logger}
}

func loggerOf(c Cache) log.Logger {
	if lc, ok := c.(*loggedCache); ok {
		return log.OrDefault(lc.logger)
	}
	return log.GetDefaultLogger()
}

// Key hashes a prompt together with the parameters that influence its completion
func Key(prompt string, params rag.ModelParams) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	p, _ := json.Marshal(params)
	h.Write(p)
	return hex.EncodeToString(h.Sum(nil))
}

// Cached runs model through c. A nil cache or disabled=true bypasses it.
// Cache failures are logged and treated as misses, and the model result is
// only stored when accept returns true (nil accept stores everything).
func Cached(ctx context.Context, c Cache, disabled bool, model rag.LLM, prompt string, params rag.ModelParams, accept func(string) bool) (string, error) {
	if c == nil || disabled {
		return model.Complete(ctx, prompt, params)
	}

	logger := loggerOf(c)
	key := Key(prompt, params)
	if text, ok, err := c.Get(ctx, key); err != nil {
		logger.Warn("llm cache read failed: %v", err)
	} else if ok && (accept == nil || accept(text)) {
		logger.Debug("llm cache hit %s", key[:12])
		return text, nil
	}

	text, err := model.Complete(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	if accept == nil || accept(text) {
		if err := c.Put(ctx, key, text); err != nil {
			logger.Warn("llm cache write failed: %v", err)
		}
	}
	return text, nil
}
