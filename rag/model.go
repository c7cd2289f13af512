package rag

import "context"

// Message is one turn of a conversation passed to a completion call
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelParams are the per-call settings of a completion
type ModelParams struct {
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	History      []Message `json:"history,omitempty"`
}

// LLM is the completion function
type LLM interface {
	Complete(ctx context.Context, prompt string, params ModelParams) (string, error)
}

// Embedder is the embedding function. Every returned vector has GetDimension elements.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// LLMFunc adapts a plain function to LLM
type LLMFunc func(ctx context.Context, prompt string, params ModelParams) (string, error)

// Complete calls f
func (f LLMFunc) Complete(ctx context.Context, prompt string, params ModelParams) (string, error) {
	return f(ctx, prompt, params)
}
