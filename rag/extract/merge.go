package extract

import (
	"sort"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// MergeEntity derives the merged view of an entity from its mentions.
// The type is the most frequent known type (ties alphabetical), the
// description joins distinct mention descriptions in chunk id order, and
// the provenance is the sorted set of chunk ids.
func MergeEntity(e *rag.Entity) {
	ids := sortedKeys(e.Mentions)
	e.SourceIDs = ids

	counts := make(map[string]int)
	descs := make([]string, 0, len(ids))
	for _, id := range ids {
		m := e.Mentions[id]
		if m.Type != "" && m.Type != rag.UnknownEntityType {
			counts[m.Type]++
		}
		descs = append(descs, m.Description)
	}
	e.Type = majority(counts)
	e.Description = joinDistinct(descs)
}

// MergeRelationship derives the merged view of a relationship from its
// mentions. Weights add up, keywords are the sorted union and descriptions
// join as for entities.
func MergeRelationship(r *rag.Relationship) {
	ids := sortedKeys(r.Mentions)
	r.SourceIDs = ids

	var weight float64
	var keywords []string
	descs := make([]string, 0, len(ids))
	for _, id := range ids {
		m := r.Mentions[id]
		weight += m.Weight
		keywords = unionSorted(keywords, m.Keywords)
		descs = append(descs, m.Description)
	}
	r.Weight = weight
	r.Keywords = keywords
	r.Description = joinDistinct(descs)
}

func majority(counts map[string]int) string {
	best, n := rag.UnknownEntityType, 0
	for t, c := range counts {
		if c > n || (c == n && t < best) {
			best, n = t, c
		}
	}
	return best
}

func joinDistinct(descs []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range descs {
		for _, part := range strings.Split(d, rag.FieldSep) {
			if part = strings.TrimSpace(part); part != "" && !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return strings.Join(out, rag.FieldSep)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
