package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/graphrag/rag"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// LangChainLLM adapts a langchaingo model to rag.LLM
type LangChainLLM struct {
	model llms.Model
}

// NewLangChainLLM wraps model
func NewLangChainLLM(model llms.Model) *LangChainLLM {
	return &LangChainLLM{model: model}
}

// Complete sends the system prompt, history and prompt as message content
func (l *LangChainLLM) Complete(ctx context.Context, prompt string, params rag.ModelParams) (string, error) {
	var msgs []llms.MessageContent
	if params.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, params.SystemPrompt))
	}
	for _, m := range params.History {
		msgs = append(msgs, llms.TextParts(chatRole(m.Role), m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	var opts []llms.CallOption
	if params.Model != "" {
		opts = append(opts, llms.WithModel(params.Model))
	}
	if params.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(params.Temperature))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}

	resp, err := l.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("langchain completion returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func chatRole(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant", "ai":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// LangChainEmbedder adapts a langchaingo embedder to rag.Embedder
type LangChainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
}

// NewLangChainEmbedder wraps embedder, whose vectors have dimension elements
func NewLangChainEmbedder(embedder embeddings.Embedder, dimension int) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder, dimension: dimension}
}

// EmbedDocuments embeds texts and checks every vector's size
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("langchain embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != l.dimension {
			return nil, rag.DimensionError(l.dimension, len(v))
		}
	}
	return vectors, nil
}

// GetDimension returns the embedding size
func (l *LangChainEmbedder) GetDimension() int {
	return l.dimension
}
