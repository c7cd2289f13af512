package rag

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// HashID returns prefix + hex(md5(parts joined by NUL))
func HashID(prefix string, parts ...string) string {
	h := md5.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// DocumentID derives the id of a document from its content
func DocumentID(content string) string {
	return HashID("doc-", strings.TrimSpace(content))
}

// ChunkID derives the id of a chunk from its parent, position and content
func ChunkID(docID string, index int, content string) string {
	return HashID("chunk-", docID, strconv.Itoa(index), content)
}

// EntityVectorID is the id of an entity in the entity vector store
func EntityVectorID(name string) string {
	return HashID("ent-", name)
}

// RelationshipVectorID is the id of a relationship in the relationship vector store
func RelationshipVectorID(key EdgeKey) string {
	return HashID("rel-", key.Source, key.Target)
}

// NormalizeEntityName maps surface forms of a name to one identity key:
// quotes are stripped, runs of whitespace collapse to one space and
// letters are upper-cased.
func NormalizeEntityName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), `"'`+"`")
	var b strings.Builder
	space := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Summary cuts s to at most n runes
func Summary(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
