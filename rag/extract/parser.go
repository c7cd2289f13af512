package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// Result is the structured answer of one extraction prompt
type Result struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// ExtractedEntity is an entity as returned by the model
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship is a relationship as returned by the model
type ExtractedRelationship struct {
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	Description string    `json:"description"`
	Keywords    Keywords  `json:"keywords"`
	Weight      flexFloat `json:"weight"`
}

// Keywords accepts either a JSON list or a comma separated string
type Keywords []string

// UnmarshalJSON implements json.Unmarshaler
func (k *Keywords) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = cleanKeywords(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("keywords must be a list or a string: %w", err)
	}
	*k = cleanKeywords(strings.Split(s, ","))
	return nil
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flexFloat accepts a number or a numeric string; zero means absent
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*f = flexFloat(n)
	}
	return nil
}

// Parse reads a Result from model output. Code fences and prose around
// the JSON object are ignored.
func Parse(text string) (*Result, error) {
	body := strings.TrimSpace(text)
	if i := strings.Index(body, "```"); i >= 0 {
		rest := body[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			body = rest[:j]
		}
	}

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in output", rag.ErrExtractionParse)
	}

	var r Result
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrExtractionParse, err)
	}
	return &r, nil
}

// parsable reports whether text would be accepted by Parse
func parsable(text string) bool {
	_, err := Parse(text)
	return err == nil
}
