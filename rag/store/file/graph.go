package file

import (
	"context"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/memory"
)

// Graph is a rag.GraphStore kept in one JSON file
type Graph struct {
	*memory.Graph
	p *persister[memory.GraphData]
}

// OpenGraph loads or creates the graph at path
func OpenGraph(path string) (*Graph, error) {
	mem := memory.NewGraph()
	var data memory.GraphData
	if _, err := readJSON(path, &data); err != nil {
		return nil, err
	}
	mem.Import(data)

	return &Graph{
		Graph: mem,
		p: &persister[memory.GraphData]{
			path:     path,
			snapshot: mem.Export,
			restore:  mem.Import,
			encode:   func(d memory.GraphData) any { return d },
		},
	}, nil
}

// UpsertNode writes the node and flushes the file
func (g *Graph) UpsertNode(ctx context.Context, entity *rag.Entity) error {
	return g.p.mutate("graph.upsert_node", func() error {
		return g.Graph.UpsertNode(ctx, entity)
	})
}

// UpsertEdge writes the edge and flushes the file
func (g *Graph) UpsertEdge(ctx context.Context, rel *rag.Relationship) error {
	return g.p.mutate("graph.upsert_edge", func() error {
		return g.Graph.UpsertEdge(ctx, rel)
	})
}

// DeleteNode removes the node with its edges and flushes the file
func (g *Graph) DeleteNode(ctx context.Context, name string) error {
	return g.p.mutate("graph.delete_node", func() error {
		return g.Graph.DeleteNode(ctx, name)
	})
}

// DeleteEdge removes the edge and flushes the file
func (g *Graph) DeleteEdge(ctx context.Context, source, target string) error {
	return g.p.mutate("graph.delete_edge", func() error {
		return g.Graph.DeleteEdge(ctx, source, target)
	})
}

// Neighborhood walks the persisted graph
func (g *Graph) Neighborhood(ctx context.Context, name string, hops int) ([]*rag.Entity, []*rag.Relationship, error) {
	return rag.WalkNeighborhood(ctx, g, name, hops)
}
