// Package falkordb implements rag.GraphStore on FalkorDB.
//
// FalkorDB speaks the Redis protocol, so the store runs GRAPH.QUERY over
// any connection with a Do method, typically the go-redis client shared
// with the redis KV and doc-status stores. Nodes carry the :Entity label
// and edges the RELATED type, stored from the smaller to the larger
// entity name; the full record lives in the data property as JSON.
package falkordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
)

const backend = "falkordb"

// Conn is the part of a redis client the store needs
type Conn interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// Graph implements rag.GraphStore
type Graph struct {
	conn Conn
	name string
}

// NewGraph creates a store on graph name
func NewGraph(conn Conn, name string) *Graph {
	if name == "" {
		name = rag.NamespaceGraph
	}
	return &Graph{conn: conn, name: name}
}

// queryResult holds the rows of a non-compact reply
type queryResult struct {
	Header []string
	Rows   [][]interface{}
}

func (g *Graph) query(ctx context.Context, op, q string) (queryResult, error) {
	var qr queryResult
	res, err := g.conn.Do(ctx, "GRAPH.QUERY", g.name, q).Result()
	if err != nil {
		return qr, wrap(op, err)
	}

	r, ok := res.([]interface{})
	if !ok {
		return qr, fmt.Errorf("failed to %s: unexpected response type %T", op, res)
	}
	switch len(r) {
	case 3:
		if header, ok := r[0].([]interface{}); ok {
			for _, h := range header {
				qr.Header = append(qr.Header, toString(h))
			}
		}
		qr.Rows = rows(r[1])
	case 1:
		// statistics only
	default:
		return qr, fmt.Errorf("failed to %s: unexpected response length %d", op, len(r))
	}
	return qr, nil
}

func rows(v interface{}) [][]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([][]interface{}, 0, len(list))
	for _, row := range list {
		if vals, ok := row.([]interface{}); ok {
			out = append(out, vals)
		}
	}
	return out
}

// InitSchema creates the id index on :Entity
func (g *Graph) InitSchema(ctx context.Context) error {
	_, err := g.query(ctx, "create index", "CREATE INDEX FOR (n:Entity) ON (n.id)")
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already indexed") {
		return nil
	}
	return err
}

// UpsertNode merges the node and replaces its data
func (g *Graph) UpsertNode(ctx context.Context, entity *rag.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	q := fmt.Sprintf("MERGE (n:Entity {id: %s}) SET n.entity_type = %s, n.data = %s",
		quote(entity.Name), quote(entity.Type), quote(string(data)))
	_, err = g.query(ctx, "upsert node", q)
	return err
}

// UpsertEdge merges the edge when both endpoints exist
func (g *Graph) UpsertEdge(ctx context.Context, rel *rag.Relationship) error {
	key := rel.Key()
	stored := rel.Clone()
	stored.Source, stored.Target = key.Source, key.Target
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship: %w", err)
	}

	q := fmt.Sprintf("MATCH (a:Entity {id: %s}), (b:Entity {id: %s}) MERGE (a)-[r:RELATED]->(b) SET r.weight = %s, r.data = %s RETURN count(r)",
		quote(key.Source), quote(key.Target), strconv.FormatFloat(rel.Weight, 'f', -1, 64), quote(string(data)))
	qr, err := g.query(ctx, "upsert edge", q)
	if err != nil {
		return err
	}
	if len(qr.Rows) == 0 || len(qr.Rows[0]) == 0 || toInt(qr.Rows[0][0]) == 0 {
		return fmt.Errorf("%w: %s", rag.ErrMissingEndpoint, key)
	}
	return nil
}

// GetNode loads a node
func (g *Graph) GetNode(ctx context.Context, name string) (*rag.Entity, error) {
	qr, err := g.query(ctx, "get node", fmt.Sprintf("MATCH (n:Entity {id: %s}) RETURN n.data", quote(name)))
	if err != nil {
		return nil, err
	}
	if len(qr.Rows) == 0 || len(qr.Rows[0]) == 0 {
		return nil, rag.NotFoundError("entity", name)
	}
	var e rag.Entity
	if err := json.Unmarshal([]byte(toString(qr.Rows[0][0])), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &e, nil
}

// GetEdge loads the edge between source and target in either order
func (g *Graph) GetEdge(ctx context.Context, source, target string) (*rag.Relationship, error) {
	key := rag.NewEdgeKey(source, target)
	q := fmt.Sprintf("MATCH (:Entity {id: %s})-[r:RELATED]-(:Entity {id: %s}) RETURN r.data LIMIT 1",
		quote(key.Source), quote(key.Target))
	qr, err := g.query(ctx, "get edge", q)
	if err != nil {
		return nil, err
	}
	if len(qr.Rows) == 0 || len(qr.Rows[0]) == 0 {
		return nil, rag.NotFoundError("relationship", key.String())
	}
	return decodeEdge(qr.Rows[0][0])
}

// GetEdges loads every edge incident to name, ordered by key
func (g *Graph) GetEdges(ctx context.Context, name string) ([]*rag.Relationship, error) {
	qr, err := g.query(ctx, "get edges", fmt.Sprintf("MATCH (:Entity {id: %s})-[r:RELATED]-() RETURN r.data", quote(name)))
	if err != nil {
		return nil, err
	}

	seen := make(map[rag.EdgeKey]bool, len(qr.Rows))
	var out []*rag.Relationship
	for _, row := range qr.Rows {
		if len(row) == 0 {
			continue
		}
		rel, err := decodeEdge(row[0])
		if err != nil {
			return nil, err
		}
		if k := rel.Key(); !seen[k] {
			seen[k] = true
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

// NodeDegree counts the edges incident to name
func (g *Graph) NodeDegree(ctx context.Context, name string) (int, error) {
	edges, err := g.GetEdges(ctx, name)
	if err != nil {
		return 0, err
	}
	return len(edges), nil
}

// Neighborhood walks up to hops edges away from name
func (g *Graph) Neighborhood(ctx context.Context, name string, hops int) ([]*rag.Entity, []*rag.Relationship, error) {
	return rag.WalkNeighborhood(ctx, g, name, hops)
}

// DeleteNode removes a node with its incident edges
func (g *Graph) DeleteNode(ctx context.Context, name string) error {
	_, err := g.query(ctx, "delete node", fmt.Sprintf("MATCH (n:Entity {id: %s}) DETACH DELETE n", quote(name)))
	return err
}

// DeleteEdge removes the edge between source and target
func (g *Graph) DeleteEdge(ctx context.Context, source, target string) error {
	key := rag.NewEdgeKey(source, target)
	q := fmt.Sprintf("MATCH (:Entity {id: %s})-[r:RELATED]-(:Entity {id: %s}) DELETE r",
		quote(key.Source), quote(key.Target))
	_, err := g.query(ctx, "delete edge", q)
	return err
}

// Drop deletes the whole graph
func (g *Graph) Drop(ctx context.Context) error {
	return wrap("drop graph", g.conn.Do(ctx, "GRAPH.DELETE", g.name).Err())
}

func decodeEdge(v interface{}) (*rag.Relationship, error) {
	var r rag.Relationship
	if err := json.Unmarshal([]byte(toString(v)), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	return &r, nil
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quote renders s as a single-quoted Cypher string literal
func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	default:
		n, _ := strconv.ParseInt(toString(v), 10, 64)
		return n
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return rag.Unavailable(backend, op, err)
}
