package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
workspace: cli
working_dir: %s
storage:
  kv: file
  vector: file
  graph: file
  doc_status: file
embedding:
  provider: mock
  dimension: 8
chunking:
  size: 40
  overlap: 0
  encoding: ""
extraction:
  max_gleaning: 0
query:
  extract_keywords: false
log:
  level: none
`

var stubModel = rag.LLMFunc(func(_ context.Context, prompt string, _ rag.ModelParams) (string, error) {
	if strings.HasPrefix(prompt, "-Goal-") {
		return `{"entities": [
			{"name": "Alice", "type": "PERSON", "description": "a researcher"},
			{"name": "Paris", "type": "LOCATION", "description": "a city"}
		], "relationships": [
			{"source": "Alice", "target": "Paris", "description": "Alice lives in Paris", "keywords": "residence", "weight": 1}
		]}`, nil
	}
	return "Alice lives in Paris.", nil
})

func testOpener(ctx context.Context, cfg *config.Config) (*config.Runtime, error) {
	return config.OpenWithModels(ctx, cfg, &log.NoOpLogger{}, stubModel, llm.NewMockEmbedder(cfg.Embedding.Dimension))
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "graphrag.yaml")
	content := strings.Replace(testConfig, "%s", filepath.Join(dir, "storage"), 1)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newApp(testOpener).rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "--json", "insert", "--text", "Alice lives in Paris.", "--id", "doc-alice")
	require.NoError(t, err, out)
	var results []resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "doc-alice", results[0].ID)
	assert.Equal(t, "accepted", results[0].Outcome)

	out, err = execute(t, "--config", cfg, "--json", "insert", "--text", "Alice lives in Paris.", "--id", "doc-alice")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, "duplicate", results[0].Outcome)

	out, err = execute(t, "--config", cfg, "--json", "status")
	require.NoError(t, err, out)
	var docs []rag.DocumentStatus
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, rag.StatusProcessed, docs[0].Status)

	out, err = execute(t, "--config", cfg, "status", "doc-alice")
	require.NoError(t, err, out)
	assert.Contains(t, out, "doc-alice")
	assert.Contains(t, out, "processed")

	out, err = execute(t, "--config", cfg, "query", "--mode", "local", "--only-context", "where", "does", "Alice", "live?")
	require.NoError(t, err, out)
	assert.Contains(t, strings.ToUpper(out), "ALICE")
	assert.Contains(t, strings.ToUpper(out), "PARIS")

	out, err = execute(t, "--config", cfg, "--json", "query", "--mode", "hybrid", "who is Alice?")
	require.NoError(t, err, out)
	var answer map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "hybrid", answer["mode"])
	assert.Equal(t, "Alice lives in Paris.", answer["answer"])
	assert.NotEmpty(t, answer["elapsed"])

	out, err = execute(t, "--config", cfg, "delete", "doc-alice")
	require.NoError(t, err, out)
	assert.Contains(t, out, "deleted doc-alice")

	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "no documents")
}

func TestEnqueueAndResume(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "--config", cfg, "insert", "--enqueue", "--text", "Alice visited Paris.")
	require.NoError(t, err, out)

	out, err = execute(t, "--config", cfg, "--json", "status", "--state", "pending")
	require.NoError(t, err, out)
	var docs []rag.DocumentStatus
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)

	out, err = execute(t, "--config", cfg, "--json", "resume")
	require.NoError(t, err, out)
	var results []resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "accepted", results[0].Outcome)

	out, err = execute(t, "--config", cfg, "--json", "status", "--state", "processed")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Len(t, docs, 1)
}

func TestInsertFromDirectory(t *testing.T) {
	cfg := writeTestConfig(t)
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.md"), []byte("# Alice\n\nAlice lives in *Paris*."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(input, "b.txt"), []byte("Bob works in Paris."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(input, "ignored.bin"), []byte{0, 1, 2}, 0o600))

	out, err := execute(t, "--config", cfg, "--json", "insert", input)
	require.NoError(t, err, out)
	var results []resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 2)
}

func TestCommandErrors(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := execute(t, "--config", cfg, "insert")
	assert.ErrorContains(t, err, "nothing to insert")

	_, err = execute(t, "--config", cfg, "insert", "--id", "x", "--text", "a", "--text", "b")
	assert.ErrorContains(t, err, "--id needs exactly one --text")

	_, err = execute(t, "--config", cfg, "query", "--mode", "sideways", "q")
	assert.ErrorIs(t, err, rag.ErrInvalidConfig)

	_, err = execute(t, "--config", cfg, "status", "--state", "lost")
	assert.ErrorContains(t, err, `unknown document status "lost"`)

	_, err = execute(t, "--config", cfg, "status", "missing-doc")
	assert.True(t, rag.IsNotFound(err))

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "status")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.yaml")
	out, err := execute(t, "config", "init", path)
	require.NoError(t, err, out)
	assert.FileExists(t, path)

	t.Setenv("OPENAI_API_KEY", "sk-abcdefghijkl")
	out, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, "sk-****kl")
	assert.NotContains(t, out, "sk-abcdefghijkl")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "sk-****yz", mask("sk-0123456789xyz"))
}
