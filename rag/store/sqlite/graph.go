package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smallnest/graphrag/rag"
)

// Graph implements rag.GraphStore on the node and edge tables
type Graph struct {
	db        *sql.DB
	workspace string
}

// NewGraph creates a graph store
func NewGraph(db *sql.DB, workspace string) *Graph {
	return &Graph{db: db, workspace: workspaceOrDefault(workspace)}
}

// UpsertNode inserts or replaces a node
func (g *Graph) UpsertNode(ctx context.Context, entity *rag.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO graphrag_graph_nodes (workspace, id, data) VALUES (?, ?, ?)
		ON CONFLICT (workspace, id) DO UPDATE SET data = excluded.data`,
		g.workspace, entity.Name, string(data))
	return wrap("upsert node", err)
}

// UpsertEdge inserts or replaces an edge when both endpoints exist
func (g *Graph) UpsertEdge(ctx context.Context, rel *rag.Relationship) error {
	key := rel.Key()
	stored := rel.Clone()
	stored.Source, stored.Target = key.Source, key.Target
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship: %w", err)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert edge", err)
	}
	var found int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graphrag_graph_nodes WHERE workspace = ? AND id IN (?, ?)`,
		g.workspace, key.Source, key.Target).Scan(&found); err != nil {
		_ = tx.Rollback()
		return wrap("check endpoints", err)
	}
	need := 2
	if key.Source == key.Target {
		need = 1
	}
	if found < need {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", rag.ErrMissingEndpoint, key)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO graphrag_graph_edges (workspace, source_id, target_id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace, source_id, target_id) DO UPDATE SET data = excluded.data`,
		g.workspace, key.Source, key.Target, string(data)); err != nil {
		_ = tx.Rollback()
		return wrap("upsert edge", err)
	}
	return wrap("upsert edge", tx.Commit())
}

// GetNode loads a node
func (g *Graph) GetNode(ctx context.Context, name string) (*rag.Entity, error) {
	var data string
	err := g.db.QueryRowContext(ctx,
		`SELECT data FROM graphrag_graph_nodes WHERE workspace = ? AND id = ?`,
		g.workspace, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rag.NotFoundError("entity", name)
	}
	if err != nil {
		return nil, wrap("get node", err)
	}
	var e rag.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &e, nil
}

// GetEdge loads the edge between source and target in either order
func (g *Graph) GetEdge(ctx context.Context, source, target string) (*rag.Relationship, error) {
	key := rag.NewEdgeKey(source, target)
	var data string
	err := g.db.QueryRowContext(ctx,
		`SELECT data FROM graphrag_graph_edges WHERE workspace = ? AND source_id = ? AND target_id = ?`,
		g.workspace, key.Source, key.Target).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rag.NotFoundError("relationship", key.String())
	}
	if err != nil {
		return nil, wrap("get edge", err)
	}
	return decodeEdge(data)
}

// GetEdges loads every edge incident to name
func (g *Graph) GetEdges(ctx context.Context, name string) ([]*rag.Relationship, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT data FROM graphrag_graph_edges
		WHERE workspace = ? AND (source_id = ? OR target_id = ?)
		ORDER BY source_id, target_id`,
		g.workspace, name, name)
	if err != nil {
		return nil, wrap("get edges", err)
	}
	defer rows.Close()

	var out []*rag.Relationship
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("scan edge", err)
		}
		rel, err := decodeEdge(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, wrap("iterate edges", rows.Err())
}

// NodeDegree counts the edges incident to name
func (g *Graph) NodeDegree(ctx context.Context, name string) (int, error) {
	var n int
	err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graphrag_graph_edges WHERE workspace = ? AND (source_id = ? OR target_id = ?)`,
		g.workspace, name, name).Scan(&n)
	if err != nil {
		return 0, wrap("node degree", err)
	}
	return n, nil
}

// Neighborhood walks up to hops edges away from name
func (g *Graph) Neighborhood(ctx context.Context, name string, hops int) ([]*rag.Entity, []*rag.Relationship, error) {
	return rag.WalkNeighborhood(ctx, g, name, hops)
}

// DeleteNode removes a node and its incident edges
func (g *Graph) DeleteNode(ctx context.Context, name string) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("delete node", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM graphrag_graph_edges WHERE workspace = ? AND (source_id = ? OR target_id = ?)`,
		g.workspace, name, name); err != nil {
		_ = tx.Rollback()
		return wrap("delete node edges", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM graphrag_graph_nodes WHERE workspace = ? AND id = ?`,
		g.workspace, name); err != nil {
		_ = tx.Rollback()
		return wrap("delete node", err)
	}
	return wrap("delete node", tx.Commit())
}

// DeleteEdge removes the edge between source and target
func (g *Graph) DeleteEdge(ctx context.Context, source, target string) error {
	key := rag.NewEdgeKey(source, target)
	_, err := g.db.ExecContext(ctx,
		`DELETE FROM graphrag_graph_edges WHERE workspace = ? AND source_id = ? AND target_id = ?`,
		g.workspace, key.Source, key.Target)
	return wrap("delete edge", err)
}

func decodeEdge(data string) (*rag.Relationship, error) {
	var r rag.Relationship
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	return &r, nil
}
