package splitter

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Span is the byte range of one token inside the source text
type Span struct {
	Start int
	End   int
}

// Tokenizer splits text into tokens addressed by byte offsets
type Tokenizer interface {
	Tokenize(text string) []Span
}

// WhitespaceTokenizer treats every run of non-space characters as a token
type WhitespaceTokenizer struct{}

// Tokenize returns the spans of all whitespace-separated words
func (WhitespaceTokenizer) Tokenize(text string) []Span {
	var spans []Span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, Span{Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

// TiktokenTokenizer counts tokens the way OpenAI models do
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named BPE encoding, e.g. "cl100k_base"
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Tokenize encodes text and maps every token back to its byte range.
// Token boundaries that fall inside a multi-byte rune are moved to the
// next rune start, so every span is valid UTF-8.
func (t *TiktokenTokenizer) Tokenize(text string) []Span {
	ids := t.enc.Encode(text, nil, nil)
	spans := make([]Span, 0, len(ids))
	pos, prev := 0, 0
	for _, id := range ids {
		pos += len(t.enc.Decode([]int{id}))
		end := pos
		if end > len(text) {
			end = len(text)
		}
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
		if end > prev {
			spans = append(spans, Span{Start: prev, End: end})
			prev = end
		}
	}
	return spans
}

// CountTokens returns the number of tokens in text
func CountTokens(t Tokenizer, text string) int {
	return len(t.Tokenize(text))
}
