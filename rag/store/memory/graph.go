package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/graphrag/rag"
)

// GraphData is a serializable copy of a graph
type GraphData struct {
	Nodes []*rag.Entity       `json:"nodes"`
	Edges []*rag.Relationship `json:"edges"`
}

// Graph is an in-memory rag.GraphStore
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]*rag.Entity
	edges     map[rag.EdgeKey]*rag.Relationship
	adjacency map[string]map[string]struct{}
}

// NewGraph creates an empty Graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*rag.Entity),
		edges:     make(map[rag.EdgeKey]*rag.Relationship),
		adjacency: make(map[string]map[string]struct{}),
	}
}

// UpsertNode inserts or replaces the node named entity.Name
func (g *Graph) UpsertNode(_ context.Context, entity *rag.Entity) error {
	if entity == nil || entity.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[entity.Name] = entity.Clone()
	return nil
}

// UpsertEdge inserts or replaces an edge; both endpoints must exist
func (g *Graph) UpsertEdge(_ context.Context, rel *rag.Relationship) error {
	if rel == nil {
		return fmt.Errorf("relationship is required")
	}
	key := rel.Key()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range []string{key.Source, key.Target} {
		if _, ok := g.nodes[name]; !ok {
			return fmt.Errorf("%w: %s", rag.ErrMissingEndpoint, name)
		}
	}

	stored := rel.Clone()
	stored.Source, stored.Target = key.Source, key.Target
	g.edges[key] = stored
	g.link(key.Source, key.Target)
	g.link(key.Target, key.Source)
	return nil
}

func (g *Graph) link(a, b string) {
	if g.adjacency[a] == nil {
		g.adjacency[a] = make(map[string]struct{})
	}
	g.adjacency[a][b] = struct{}{}
}

// GetNode returns a copy of the named node
func (g *Graph) GetNode(_ context.Context, name string) (*rag.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, rag.NotFoundError("entity", name)
	}
	return n.Clone(), nil
}

// GetEdge returns the edge between source and target in either order
func (g *Graph) GetEdge(_ context.Context, source, target string) (*rag.Relationship, error) {
	key := rag.NewEdgeKey(source, target)
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[key]
	if !ok {
		return nil, rag.NotFoundError("relationship", key.String())
	}
	return e.Clone(), nil
}

// GetEdges returns all edges incident to name, ordered by key
func (g *Graph) GetEdges(_ context.Context, name string) ([]*rag.Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*rag.Relationship, 0, len(g.adjacency[name]))
	for other := range g.adjacency[name] {
		out = append(out, g.edges[rag.NewEdgeKey(name, other)].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

// NodeDegree returns the number of edges incident to name
func (g *Graph) NodeDegree(_ context.Context, name string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency[name]), nil
}

// Neighborhood returns the nodes and edges within hops of name
func (g *Graph) Neighborhood(ctx context.Context, name string, hops int) ([]*rag.Entity, []*rag.Relationship, error) {
	return rag.WalkNeighborhood(ctx, g, name, hops)
}

// DeleteNode removes the node and every incident edge
func (g *Graph) DeleteNode(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for other := range g.adjacency[name] {
		delete(g.edges, rag.NewEdgeKey(name, other))
		delete(g.adjacency[other], name)
		if len(g.adjacency[other]) == 0 {
			delete(g.adjacency, other)
		}
	}
	delete(g.adjacency, name)
	delete(g.nodes, name)
	return nil
}

// DeleteEdge removes the edge between source and target
func (g *Graph) DeleteEdge(_ context.Context, source, target string) error {
	key := rag.NewEdgeKey(source, target)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[key]; !ok {
		return nil
	}
	delete(g.edges, key)
	g.unlink(key.Source, key.Target)
	g.unlink(key.Target, key.Source)
	return nil
}

func (g *Graph) unlink(a, b string) {
	delete(g.adjacency[a], b)
	if len(g.adjacency[a]) == 0 {
		delete(g.adjacency, a)
	}
}

// NodeNames returns all node names in sorted order
func (g *Graph) NodeNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EdgeKeys returns all edge keys in sorted order
func (g *Graph) EdgeKeys() []rag.EdgeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]rag.EdgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Export returns a copy of the whole graph
func (g *Graph) Export() GraphData {
	g.mu.RLock()
	defer g.mu.RUnlock()
	data := GraphData{
		Nodes: make([]*rag.Entity, 0, len(g.nodes)),
		Edges: make([]*rag.Relationship, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		data.Nodes = append(data.Nodes, n.Clone())
	}
	for _, e := range g.edges {
		data.Edges = append(data.Edges, e.Clone())
	}
	sort.Slice(data.Nodes, func(i, j int) bool { return data.Nodes[i].Name < data.Nodes[j].Name })
	sort.Slice(data.Edges, func(i, j int) bool { return data.Edges[i].Key().String() < data.Edges[j].Key().String() })
	return data
}

// Import replaces the graph content with data. Edges whose endpoints are
// not among the nodes are dropped.
func (g *Graph) Import(data GraphData) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*rag.Entity, len(data.Nodes))
	g.edges = make(map[rag.EdgeKey]*rag.Relationship, len(data.Edges))
	g.adjacency = make(map[string]map[string]struct{})
	for _, n := range data.Nodes {
		g.nodes[n.Name] = n.Clone()
	}
	for _, e := range data.Edges {
		key := e.Key()
		if g.nodes[key.Source] == nil || g.nodes[key.Target] == nil {
			continue
		}
		g.edges[key] = e.Clone()
		g.link(key.Source, key.Target)
		g.link(key.Target, key.Source)
	}
}
