package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/graphrag/rag"
)

const (
	// DefaultChatModel is used when no model is configured
	DefaultChatModel = openai.GPT4oMini
	// DefaultEmbeddingModel is used when no embedding model is configured
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimension is the native size of DefaultEmbeddingModel
	DefaultEmbeddingDimension = 1536
)

// ChatAPI is the part of the OpenAI client used for completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmbeddingAPI is the part of the OpenAI client used for embeddings
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error)
}

type clientAdapter struct {
	client *openai.Client
}

func (a clientAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.client.CreateChatCompletion(ctx, req)
}

func (a clientAdapter) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	return a.client.CreateEmbeddings(ctx, req)
}

// NewOpenAIClient creates a client; an empty baseURL uses api.openai.com
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAI implements rag.LLM with the chat completions API
type OpenAI struct {
	api   ChatAPI
	model string
}

// NewOpenAI creates a completion adapter on client
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return NewOpenAIWithAPI(clientAdapter{client: client}, model)
}

// NewOpenAIWithAPI creates a completion adapter on any ChatAPI
func NewOpenAIWithAPI(api ChatAPI, model string) *OpenAI {
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAI{api: api, model: model}
}

// Complete sends the system prompt, the history and prompt as one chat request
func (o *OpenAI) Complete(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}

	var messages []openai.ChatCompletionMessage
	if params.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: params.SystemPrompt})
	}
	for _, m := range params.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder implements rag.Embedder with the embeddings API
type OpenAIEmbedder struct {
	api       EmbeddingAPI
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedding adapter on client
func NewOpenAIEmbedder(client *openai.Client, model string, dimension int) *OpenAIEmbedder {
	return NewOpenAIEmbedderWithAPI(clientAdapter{client: client}, model, dimension)
}

// NewOpenAIEmbedderWithAPI creates an embedding adapter on any EmbeddingAPI
func NewOpenAIEmbedderWithAPI(api EmbeddingAPI, model string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	return &OpenAIEmbedder{api: api, model: model, dimension: dimension}
}

// EmbedDocuments embeds texts in one request and returns vectors in input order
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.model != string(openai.AdaEmbeddingV2) {
		req.Dimensions = e.dimension
	}

	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != e.dimension {
			return nil, rag.DimensionError(e.dimension, len(d.Embedding))
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// GetDimension returns the configured embedding size
func (e *OpenAIEmbedder) GetDimension() int {
	return e.dimension
}

// IsRetryable reports whether an OpenAI error is transient: rate limits,
// server errors and transport failures are, other client errors are not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
