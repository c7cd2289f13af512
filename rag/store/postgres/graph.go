package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/smallnest/graphrag/rag"
)

// Graph implements rag.GraphStore on node and edge tables
type Graph struct {
	pool      DBPool
	workspace string
}

// NewGraph creates a graph store on an existing pool
func NewGraph(pool DBPool, workspace string) *Graph {
	return &Graph{pool: pool, workspace: workspaceOrDefault(workspace)}
}

// InitSchema creates the node and edge tables if they don't exist
func (g *Graph) InitSchema(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS graphrag_graph_nodes (
			workspace VARCHAR(255) NOT NULL,
			id VARCHAR(512) NOT NULL,
			entity_type VARCHAR(255) NOT NULL DEFAULT '',
			data JSONB NOT NULL,
			update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workspace, id)
		);
		CREATE TABLE IF NOT EXISTS graphrag_graph_edges (
			workspace VARCHAR(255) NOT NULL,
			source_id VARCHAR(512) NOT NULL,
			target_id VARCHAR(512) NOT NULL,
			data JSONB NOT NULL,
			update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workspace, source_id, target_id)
		);
		CREATE INDEX IF NOT EXISTS idx_graphrag_graph_edges_target ON graphrag_graph_edges (workspace, target_id)`)
	return wrap("create graph schema", err)
}

// UpsertNode inserts or replaces a node
func (g *Graph) UpsertNode(ctx context.Context, entity *rag.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	_, err = g.pool.Exec(ctx, `
		INSERT INTO graphrag_graph_nodes (workspace, id, entity_type, data, update_time)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (workspace, id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			data = EXCLUDED.data,
			update_time = NOW()`,
		g.workspace, entity.Name, entity.Type, data)
	return wrap("upsert node", err)
}

// UpsertEdge inserts or replaces an edge after locking both endpoint rows
func (g *Graph) UpsertEdge(ctx context.Context, rel *rag.Relationship) error {
	key := rel.Key()
	stored := rel.Clone()
	stored.Source, stored.Target = key.Source, key.Target
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship: %w", err)
	}

	endpoints := []string{key.Source, key.Target}
	if key.Source == key.Target {
		endpoints = endpoints[:1]
	}

	return withTx(ctx, g.pool, "upsert edge", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM graphrag_graph_nodes WHERE workspace = $1 AND id = ANY($2) FOR SHARE`,
			g.workspace, endpoints)
		if err != nil {
			return wrap("lock endpoints", err)
		}
		found := 0
		for rows.Next() {
			found++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrap("lock endpoints", err)
		}
		if found < len(endpoints) {
			return fmt.Errorf("%w: %s", rag.ErrMissingEndpoint, key)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO graphrag_graph_edges (workspace, source_id, target_id, data, update_time)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (workspace, source_id, target_id) DO UPDATE SET
				data = EXCLUDED.data,
				update_time = NOW()`,
			g.workspace, key.Source, key.Target, data)
		return wrap("upsert edge", err)
	})
}

// GetNode loads a node
func (g *Graph) GetNode(ctx context.Context, name string) (*rag.Entity, error) {
	var data []byte
	err := g.pool.QueryRow(ctx,
		`SELECT data FROM graphrag_graph_nodes WHERE workspace = $1 AND id = $2`,
		g.workspace, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rag.NotFoundError("entity", name)
	}
	if err != nil {
		return nil, wrap("get node", err)
	}
	var e rag.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &e, nil
}

// GetEdge loads the edge between source and target in either order
func (g *Graph) GetEdge(ctx context.Context, source, target string) (*rag.Relationship, error) {
	key := rag.NewEdgeKey(source, target)
	var data []byte
	err := g.pool.QueryRow(ctx,
		`SELECT data FROM graphrag_graph_edges WHERE workspace = $1 AND source_id = $2 AND target_id = $3`,
		g.workspace, key.Source, key.Target).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rag.NotFoundError("relationship", key.String())
	}
	if err != nil {
		return nil, wrap("get edge", err)
	}
	return decodeEdge(data)
}

// GetEdges loads every edge incident to name
func (g *Graph) GetEdges(ctx context.Context, name string) ([]*rag.Relationship, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT data FROM graphrag_graph_edges
		WHERE workspace = $1 AND (source_id = $2 OR target_id = $2)
		ORDER BY source_id, target_id`,
		g.workspace, name)
	if err != nil {
		return nil, wrap("get edges", err)
	}
	defer rows.Close()

	var out []*rag.Relationship
	for rows.Next() {
		var data []byte
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
	err := g.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM graphrag_graph_edges WHERE workspace = $1 AND (source_id = $2 OR target_id = $2)`,
		g.workspace, name).Scan(&n)
	if err != nil {
		return 0, wrap("node degree", err)
	}
	return n, nil
}

// Neighborhood walks up to hops edges away from name
func (g *Graph) Neighborhood(ctx context.Context, name string, hops int) ([]*rag.Entity, []*rag.Relationship, error) {
	return rag.WalkNeighborhood(ctx, g, name, hops)
}

// DeleteNode removes a node and its incident edges in one transaction
func (g *Graph) DeleteNode(ctx context.Context, name string) error {
	return withTx(ctx, g.pool, "delete node", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM graphrag_graph_edges WHERE workspace = $1 AND (source_id = $2 OR target_id = $2)`,
			g.workspace, name); err != nil {
			return wrap("delete node edges", err)
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM graphrag_graph_nodes WHERE workspace = $1 AND id = $2`,
			g.workspace, name)
		return wrap("delete node", err)
	})
}

// DeleteEdge removes the edge between source and target
func (g *Graph) DeleteEdge(ctx context.Context, source, target string) error {
	key := rag.NewEdgeKey(source, target)
	_, err := g.pool.Exec(ctx,
		`DELETE FROM graphrag_graph_edges WHERE workspace = $1 AND source_id = $2 AND target_id = $3`,
		g.workspace, key.Source, key.Target)
	return wrap("delete edge", err)
}

func decodeEdge(data []byte) (*rag.Relationship, error) {
	var r rag.Relationship
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	return &r, nil
}
