package llm

import (
	"context"
	"sync/atomic"

	"github.com/smallnest/graphrag/rag"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate is a counting semaphore admitting at most a fixed number of
// concurrent model calls, optionally paced by a token-bucket limiter.
// Acquire blocks until a slot is free or ctx is done.
type Gate struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	size     int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewGate creates a gate with maxConcurrent slots. A positive
// requestsPerSecond additionally limits the call rate.
func NewGate(maxConcurrent int, requestsPerSecond float64) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	g := &Gate{
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
		size: maxConcurrent,
	}
	if requestsPerSecond > 0 {
		burst := maxConcurrent
		g.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return g
}

// Size returns the number of slots
func (g *Gate) Size() int {
	return g.size
}

// Acquire takes a slot
func (g *Gate) Acquire(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release returns a slot
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of calls currently admitted
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of simultaneously admitted calls
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// LLM wraps model so every completion holds a slot while it runs
func (g *Gate) LLM(model rag.LLM) rag.LLM {
	return rag.LLMFunc(func(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
		if err := g.Acquire(ctx); err != nil {
			return "", err
		}
		defer g.Release()
		return model.Complete(ctx, prompt, params)
	})
}

type gatedEmbedder struct {
	gate     *Gate
	embedder rag.Embedder
}

// Embedder wraps embedder so every embedding call holds a slot while it runs
func (g *Gate) Embedder(embedder rag.Embedder) rag.Embedder {
	return &gatedEmbedder{gate: g, embedder: embedder}
}

func (e *gatedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	return e.embedder.EmbedDocuments(ctx, texts)
}

func (e *gatedEmbedder) GetDimension() int {
	return e.embedder.GetDimension()
}
