// Package loader turns files into rag documents. Markdown and HTML are
// reduced to their plain text before ingestion.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/graphrag/rag"
)

// Loader produces documents
type Loader interface {
	Load(ctx context.Context) ([]rag.Document, error)
}

// Format is the markup of a source file
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// DetectFormat picks the format from the file extension; unknown
// extensions are read as text
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatText
	}
}

// ToText converts data in format f to plain text
func ToText(data []byte, f Format) (string, error) {
	switch f {
	case FormatText, "":
		return string(data), nil
	case FormatMarkdown:
		return htmlText(markdownToHTML(data))
	case FormatHTML:
		return htmlText(data)
	default:
		return "", fmt.Errorf("unsupported format %q", f)
	}
}

func markdownToHTML(data []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(p.Parse(data), renderer)
}

// block elements end a line of text
const blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, pre, blockquote, br, table, section, article"

func htmlText(data []byte) (string, error) {
	clean := bluemonday.UGCPolicy().SanitizeBytes(data)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(clean))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
