package rag

import (
	"context"
	"sort"
)

// EdgeReader is the part of a GraphStore that a traversal needs
type EdgeReader interface {
	GetNode(ctx context.Context, name string) (*Entity, error)
	GetEdges(ctx context.Context, name string) ([]*Relationship, error)
}

// WalkNeighborhood collects all nodes within hops of name, excluding name
// itself, and every edge traversed to reach them. A missing start node
// yields empty results.
func WalkNeighborhood(ctx context.Context, g EdgeReader, name string, hops int) ([]*Entity, []*Relationship, error) {
	if hops <= 0 {
		return nil, nil, nil
	}
	if _, err := g.GetNode(ctx, name); err != nil {
		if IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	visited := map[string]bool{name: true}
	seenEdges := make(map[EdgeKey]*Relationship)
	frontier := []string{name}
	var found []string

	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []string
		for _, current := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			edges, err := g.GetEdges(ctx, current)
			if err != nil {
				return nil, nil, err
			}
			for _, e := range edges {
				seenEdges[e.Key()] = e
				other := e.Target
				if other == current {
					other = e.Source
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				next = append(next, other)
				found = append(found, other)
			}
		}
		frontier = next
	}

	sort.Strings(found)
	nodes := make([]*Entity, 0, len(found))
	for _, n := range found {
		e, err := g.GetNode(ctx, n)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		nodes = append(nodes, e)
	}

	edges := make([]*Relationship, 0, len(seenEdges))
	for _, e := range seenEdges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Key().String() < edges[j].Key().String()
	})
	return nodes, edges, nil
}
