package llm

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := Retry(ctx, fastRetry(3), "op", func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("503")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted retries wrap ErrModelCall", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, fastRetry(2), "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
		assert.ErrorIs(t, err, rag.ErrModelCall)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, 2, calls)
	})

	t.Run("non retryable stops immediately", func(t *testing.T) {
		cfg := fastRetry(5)
		cfg.Retryable = func(error) bool { return false }
		calls := 0
		_, err := Retry(ctx, cfg, "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("400")
		})
		assert.ErrorIs(t, err, rag.ErrModelCall)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancellation is not a model failure", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Retry(cctx, fastRetry(3), "op", func(context.Context) (int, error) {
			return 1, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, rag.ErrModelCall)
	})
}

func TestRetry_LogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := fastRetry(2)
	cfg.Logger = log.NewCustomLogger(&buf, log.LogLevelDebug)

	model := WithRetry(rag.LLMFunc(func(context.Context, string, rag.ModelParams) (string, error) {
		return "", errors.New("503 service unavailable")
	}), cfg)
	_, err := model.Complete(context.Background(), "q", rag.ModelParams{})
	assert.ErrorIs(t, err, rag.ErrModelCall)
	assert.Contains(t, buf.String(), "completion failed (attempt 1/2)")
	assert.NotContains(t, buf.String(), "attempt 2/2")
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 100*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 300*time.Millisecond, cfg.delay(3))
}

func TestGate_BoundsConcurrency(t *testing.T) {
	gate := NewGate(3, 0)
	var active, maxActive atomic.Int64
	model := gate.LLM(rag.LLMFunc(func(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return prompt, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := model.Complete(context.Background(), "p", rag.ModelParams{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxActive.Load(), int64(3))
	assert.LessOrEqual(t, gate.Peak(), 3)
	assert.Equal(t, 0, gate.InFlight())
}

func TestGate_AcquireRespectsContext(t *testing.T) {
	gate := NewGate(1, 0)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Acquire(ctx), context.DeadlineExceeded)
}

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeEmbeddings struct {
	resp openai.EmbeddingResponse
}

func (f *fakeEmbeddings) CreateEmbeddings(_ context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	return f.resp, nil
}

func TestOpenAI(t *testing.T) {
	api := &fakeChat{resp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hi"}}}}}
	model := NewOpenAIWithAPI(api, "")

	out, err := model.Complete(context.Background(), "hello", rag.ModelParams{
		SystemPrompt: "be brief",
		History:      []rag.Message{{Role: "assistant", Content: "earlier"}},
		MaxTokens:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, DefaultChatModel, api.req.Model)
	require.Len(t, api.req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.req.Messages[0].Role)
	assert.Equal(t, "hello", api.req.Messages[2].Content)

	api.resp = openai.ChatCompletionResponse{}
	_, err = model.Complete(context.Background(), "hello", rag.ModelParams{})
	assert.Error(t, err)
}

func TestOpenAIEmbedder(t *testing.T) {
	api := &fakeEmbeddings{resp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}}
	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)

	out, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)

	api.resp.Data[0].Embedding = []float32{1, 2, 3}
	_, err = e.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}))
	assert.False(t, IsRetryable(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized}))
	assert.False(t, IsRetryable(&openai.RequestError{HTTPStatusCode: http.StatusBadRequest}))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(context.Canceled))
}

type fakeLangChainModel struct {
	msgs []llms.MessageContent
}

func (f *fakeLangChainModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.msgs = msgs
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "lc"}}}, nil
}

func (f *fakeLangChainModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "lc", nil
}

type fakeLangChainEmbedder struct{}

func (fakeLangChainEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fakeLangChainEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestLangChainAdapters(t *testing.T) {
	m := &fakeLangChainModel{}
	out, err := NewLangChainLLM(m).Complete(context.Background(), "q", rag.ModelParams{SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "lc", out)
	require.Len(t, m.msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.msgs[0].Role)

	e := NewLangChainEmbedder(fakeLangChainEmbedder{}, 3)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	_, err = NewLangChainEmbedder(fakeLangChainEmbedder{}, 4).EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(64)
	vecs, err := e.EmbedDocuments(context.Background(), []string{
		"Alice works at Acme",
		"alice works at acme!",
		"quantum chromodynamics",
	})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 64)
	assert.InDelta(t, 1.0, memory.CosineSimilarity(vecs[0], vecs[1]), 1e-6)
	assert.Less(t, memory.CosineSimilarity(vecs[0], vecs[2]), 0.9)
}
