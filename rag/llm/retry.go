package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
)

// RetryConfig configures retry behavior for model calls
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable decides whether an error should trigger another attempt.
	// Nil retries everything except context errors.
	Retryable func(error) bool
	// Logger receives a line per failed attempt; nil uses the default logger
	Logger log.Logger
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	return c
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, the error is not retryable, attempts are
// exhausted or ctx is done. Model failures are wrapped with rag.ErrModelCall;
// cancellation is returned as the context error.
func Retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if errors.Is(err, rag.ErrDimensionMismatch) {
			return zero, err
		}

		lastErr = err
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, fmt.Errorf("%w: %s: %w", rag.ErrModelCall, op, err)
		}

		if attempt < cfg.MaxAttempts {
			wait := cfg.delay(attempt)
			log.OrDefault(cfg.Logger).Debug("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, cfg.MaxAttempts, wait, err)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %w", rag.ErrModelCall, op, cfg.MaxAttempts, lastErr)
}

type retryLLM struct {
	model rag.LLM
	cfg   RetryConfig
}

// WithRetry wraps model so every completion is retried per cfg
func WithRetry(model rag.LLM, cfg RetryConfig) rag.LLM {
	return &retryLLM{model: model, cfg: cfg}
}

func (r *retryLLM) Complete(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
	return Retry(ctx, r.cfg, "completion", func(ctx context.Context) (string, error) {
		return r.model.Complete(ctx, prompt, params)
	})
}

type retryEmbedder struct {
	embedder rag.Embedder
	cfg      RetryConfig
}

// WithEmbedderRetry wraps embedder so every embedding call is retried per cfg
func WithEmbedderRetry(embedder rag.Embedder, cfg RetryConfig) rag.Embedder {
	return &retryEmbedder{embedder: embedder, cfg: cfg}
}

func (r *retryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return Retry(ctx, r.cfg, "embedding", func(ctx context.Context) ([][]float32, error) {
		return r.embedder.EmbedDocuments(ctx, texts)
	})
}

func (r *retryEmbedder) GetDimension() int {
	return r.embedder.GetDimension()
}
