package splitter

import (
	"fmt"

	"github.com/smallnest/graphrag/rag"
)

const (
	// DefaultChunkTokenSize is the window size in tokens
	DefaultChunkTokenSize = 1200
	// DefaultOverlapTokenSize is the number of tokens shared by adjacent windows
	DefaultOverlapTokenSize = 100
)

// TokenChunker splits documents into overlapping token windows
type TokenChunker struct {
	chunkSize    int
	chunkOverlap int
	tokenizer    Tokenizer
}

// Option configures a TokenChunker
type Option func(*TokenChunker)

// WithChunkSize sets the window size in tokens
func WithChunkSize(size int) Option {
	return func(c *TokenChunker) {
		c.chunkSize = size
	}
}

// WithChunkOverlap sets the overlap between adjacent windows
func WithChunkOverlap(overlap int) Option {
	return func(c *TokenChunker) {
		c.chunkOverlap = overlap
	}
}

// WithTokenizer sets the tokenizer used to count and cut windows
func WithTokenizer(t Tokenizer) Option {
	return func(c *TokenChunker) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// NewTokenChunker creates a chunker; sizes are validated here, once
func NewTokenChunker(opts ...Option) (*TokenChunker, error) {
	c := &TokenChunker{
		chunkSize:    DefaultChunkTokenSize,
		chunkOverlap: DefaultOverlapTokenSize,
		tokenizer:    WhitespaceTokenizer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrInvalidConfig, c.chunkSize)
	}
	if c.chunkOverlap < 0 || c.chunkOverlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", rag.ErrInvalidConfig, c.chunkOverlap, c.chunkSize)
	}
	return c, nil
}

// Tokenizer returns the tokenizer of the chunker
func (c *TokenChunker) Tokenizer() Tokenizer {
	return c.tokenizer
}

// Chunk splits text into windows of at most chunkSize tokens, each window
// starting chunkSize-chunkOverlap tokens after the previous one. A chunk's
// content is the exact source substring from its first to its last token.
func (c *TokenChunker) Chunk(docID, text string) []rag.Chunk {
	tokens := c.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.chunkSize - c.chunkOverlap
	var chunks []rag.Chunk
	for i := 0; i < len(tokens); i += step {
		end := i + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		start, stop := tokens[i].Start, tokens[end-1].End
		content := text[start:stop]
		index := len(chunks)
		chunks = append(chunks, rag.Chunk{
			ID:      rag.ChunkID(docID, index, content),
			DocID:   docID,
			Index:   index,
			Content: content,
			Tokens:  end - i,
			Start:   start,
			End:     stop,
		})

		if end == len(tokens) {
			break
		}
	}
	return chunks
}
