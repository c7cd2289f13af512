package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/graphrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, DetectFormat("a/README.MD"))
	assert.Equal(t, FormatHTML, DetectFormat("page.htm"))
	assert.Equal(t, FormatText, DetectFormat("book.txt"))
	assert.Equal(t, FormatText, DetectFormat("noext"))
}

func TestToText(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		text, err := ToText([]byte("# Title\n\nAlice works at **Acme**.\n\n- one\n- two\n"), FormatMarkdown)
		require.NoError(t, err)
		assert.Equal(t, "Title\nAlice works at Acme.\none\ntwo", text)
	})

	t.Run("html drops scripts and markup", func(t *testing.T) {
		text, err := ToText([]byte(`<html><head><script>alert(1)</script></head>
<body><h1>News</h1><p>Bob   founded <a href="x">Acme</a>.</p></body></html>`), FormatHTML)
		require.NoError(t, err)
		assert.Equal(t, "News\nBob founded Acme.", text)
	})

	t.Run("text is unchanged", func(t *testing.T) {
		text, err := ToText([]byte("  <b>raw</b>  "), FormatText)
		require.NoError(t, err)
		assert.Equal(t, "  <b>raw</b>  ", text)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := ToText([]byte("x"), Format("pdf"))
		assert.Error(t, err)
	})
}

func TestFileLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "Alice *likes* Paris")

	docs, err := NewFileLoader(path, WithMetadata(map[string]any{"author": "test"})).Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Alice likes Paris", docs[0].Content)
	assert.Empty(t, docs[0].ID)
	assert.Equal(t, path, docs[0].Metadata["source"])
	assert.Equal(t, "markdown", docs[0].Metadata["format"])
	assert.Equal(t, "test", docs[0].Metadata["author"])

	docs, err = NewFileLoader(path, WithFormat(FormatText)).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice *likes* Paris", docs[0].Content)

	_, err = NewFileLoader(filepath.Join(dir, "missing.txt")).Load(ctx)
	assert.Error(t, err)
}

func TestDirLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "Bob")
	writeFile(t, dir, "a.md", "# Alice")
	writeFile(t, dir, "empty.txt", "   ")
	writeFile(t, dir, "image.png", "binary")
	writeFile(t, dir, "sub/c.html", "<p>Carol</p>")
	writeFile(t, dir, ".git/d.txt", "hidden")

	docs, err := NewDirLoader(dir).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, contents(docs))

	docs, err = NewDirLoader(dir, WithRecursive(true)).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, contents(docs))

	docs, err = NewDirLoader(dir, WithExtensions("txt")).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, contents(docs))

	_, err = NewDirLoader(filepath.Join(dir, "nope")).Load(ctx)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	docs, err := Static{{Content: "x"}}.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func contents(docs []rag.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
