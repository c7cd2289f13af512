package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/extract"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/smallnest/graphrag/rag/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 8

var vocabulary = []struct{ name, typ string }{
	{"Alice", "PERSON"},
	{"Bob", "PERSON"},
	{"Carol", "PERSON"},
	{"Acme", "ORGANIZATION"},
	{"Paris", "LOCATION"},
}

// fakeModel extracts every vocabulary word of a chunk and links
// consecutive ones. Chunks containing GARBAGE never get a parsable answer.
type fakeModel struct {
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	fail   atomic.Bool
	delay  time.Duration
}

func (m *fakeModel) Complete(ctx context.Context, prompt string, _ rag.ModelParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	switch {
	case prompt == extract.GleaningPrompt:
		return `{"entities": [], "relationships": []}`, nil
	case strings.HasPrefix(prompt, "-Goal-"):
		if m.fail.Load() {
			return "", errors.New("model overloaded")
		}
		text := prompt[strings.LastIndex(prompt, "-Text-")+len("-Text-"):]
		if strings.Contains(text, "GARBAGE") {
			return "I cannot help with that", nil
		}
		return extraction(strings.TrimSpace(text)), nil
	}
	return "fake answer", nil
}

func extraction(text string) string {
	type entity struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	type relationship struct {
		Source      string   `json:"source"`
		Target      string   `json:"target"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
		Weight      float64  `json:"weight"`
	}
	var out struct {
		Entities      []entity       `json:"entities"`
		Relationships []relationship `json:"relationships"`
	}
	out.Entities = []entity{}
	out.Relationships = []relationship{}

	var found []string
	for _, w := range strings.Fields(text) {
		for _, v := range vocabulary {
			if w == v.name {
				found = append(found, w)
				out.Entities = append(out.Entities, entity{Name: w, Type: v.typ, Description: w + " in: " + text})
			}
		}
	}
	for i := 1; i < len(found); i++ {
		out.Relationships = append(out.Relationships, relationship{
			Source: found[i-1], Target: found[i], Description: "mentioned together: " + text,
			Keywords: []string{"co-occurrence"}, Weight: 1,
		})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkTokenSize = 5
	cfg.ChunkOverlapTokenSize = 0
	cfg.EntityExtractMaxGleaning = 0
	cfg.ExtractKeywords = false
	cfg.Retry = llm.RetryConfig{MaxAttempts: 1}
	cfg.Logger = &log.NoOpLogger{}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, model rag.LLM) (*Engine, *Storage) {
	t.Helper()
	storage := NewMemoryStorage(testDimension)
	e, err := New(cfg, storage, model, llm.NewMockEmbedder(testDimension))
	require.NoError(t, err)
	return e, storage
}

// assertConsistent checks that every vector has its graph element or chunk
// and every graph element its vector
func assertConsistent(t *testing.T, s *Storage) {
	t.Helper()
	g := s.Graph.(*memory.Graph)

	var entityIDs []string
	for _, name := range g.NodeNames() {
		entityIDs = append(entityIDs, rag.EntityVectorID(name))
	}
	assert.ElementsMatch(t, entityIDs, s.EntityVectors.(*memory.VectorStore).IDs(), "entity vectors")

	var relIDs []string
	for _, k := range g.EdgeKeys() {
		relIDs = append(relIDs, rag.RelationshipVectorID(k))
	}
	assert.ElementsMatch(t, relIDs, s.RelationshipVectors.(*memory.VectorStore).IDs(), "relationship vectors")

	assert.ElementsMatch(t, s.TextChunks.(*memory.KVStore).Keys(), s.ChunkVectors.(*memory.VectorStore).IDs(), "chunk vectors")
}
