package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/graphrag/rag"
)

// community is a connected component of the retrieved relationships
type community struct {
	members  []string
	keywords []string
	weight   float64
	summary  []string
}

func (c community) id() string {
	return "community:" + c.members[0]
}

func (c community) String() string {
	return fmt.Sprintf("members: %s | keywords: %s | weight %g | %s",
		strings.Join(c.members, ", "), strings.Join(c.keywords, ", "), c.weight, strings.Join(c.summary, "; "))
}

// communities groups edges into connected components ordered by total
// weight, then by first member
func communities(edges []rankedEdge, entities map[string]*rag.Entity) []community {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for _, ed := range edges {
		for _, n := range []string{ed.rel.Source, ed.rel.Target} {
			if _, ok := parent[n]; !ok {
				parent[n] = n
			}
		}
		a, b := find(ed.rel.Source), find(ed.rel.Target)
		if a != b {
			if b < a {
				a, b = b, a
			}
			parent[b] = a
		}
	}

	groups := make(map[string]*community)
	kw := make(map[string]map[string]bool)
	for _, ed := range edges {
		root := find(ed.rel.Source)
		g, ok := groups[root]
		if !ok {
			g = &community{}
			groups[root] = g
			kw[root] = make(map[string]bool)
		}
		g.weight += ed.rel.Weight
		for _, k := range ed.rel.Keywords {
			kw[root][k] = true
		}
	}
	for n := range parent {
		root := find(n)
		groups[root].members = append(groups[root].members, n)
	}

	out := make([]community, 0, len(groups))
	for root, g := range groups {
		sort.Strings(g.members)
		for k := range kw[root] {
			g.keywords = append(g.keywords, k)
		}
		sort.Strings(g.keywords)
		for _, m := range g.members {
			if e := entities[m]; e != nil && e.Description != "" {
				g.summary = append(g.summary, m+": "+strings.ReplaceAll(e.Description, rag.FieldSep, " "))
			}
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].members[0] < out[j].members[0]
	})
	return out
}
