package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/smallnest/graphrag/rag"
)

// VectorStore implements rag.VectorStore on a pgvector table per namespace
type VectorStore struct {
	pool      DBPool
	workspace string
	table     string
	dimension int
}

// NewVectorStore creates a vector store for namespace on an existing pool
func NewVectorStore(pool DBPool, workspace, namespace string, dimension int) *VectorStore {
	return &VectorStore{
		pool:      pool,
		workspace: workspaceOrDefault(workspace),
		table:     "graphrag_vdb_" + sanitizeIdent(namespace),
		dimension: dimension,
	}
}

// InitSchema enables pgvector and creates the table if it doesn't exist
func (s *VectorStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			workspace VARCHAR(255) NOT NULL,
			id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workspace, id)
		)`, s.table, s.dimension)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return wrap("create vector schema", err)
	}
	return s.CheckDimension(ctx)
}

// CheckDimension compares the declared size of an existing embedding
// column with the configured dimension. A missing table passes.
func (s *VectorStore) CheckDimension(ctx context.Context) error {
	var dims int32
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding'`, s.table).Scan(&dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return wrap("check vector dimension", err)
	}
	if dims > 0 && int(dims) != s.dimension {
		return fmt.Errorf("table %s: %w", s.table, rag.DimensionError(s.dimension, int(dims)))
	}
	return nil
}

// Dimension returns the embedding size of the table
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// Upsert writes all records in one transaction
func (s *VectorStore) Upsert(ctx context.Context, records ...rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("record %s: %w", r.ID, rag.DimensionError(s.dimension, len(r.Embedding)))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (workspace, id, content, metadata, embedding, update_time)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (workspace, id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			update_time = NOW()`, s.table)

	return withTx(ctx, s.pool, "upsert vectors", func(tx pgx.Tx) error {
		for _, r := range records {
			md, err := json.Marshal(orEmpty(r.Metadata))
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
			if _, err := tx.Exec(ctx, query, s.workspace, r.ID, r.Content, md, pgvector.NewVector(r.Embedding)); err != nil {
				return wrap("upsert vector", err)
			}
		}
		return nil
	})
}

// Query ranks rows by cosine similarity; filter is matched by JSONB containment
func (s *VectorStore) Query(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]rag.VectorMatch, error) {
	if len(embedding) != s.dimension {
		return nil, rag.DimensionError(s.dimension, len(embedding))
	}
	if topK <= 0 {
		return []rag.VectorMatch{}, nil
	}

	fm, err := json.Marshal(orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE workspace = $2 AND metadata @> $3::jsonb
		ORDER BY embedding <=> $1, id
		LIMIT $4`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), s.workspace, fm, topK)
	if err != nil {
		return nil, wrap("query vectors", err)
	}
	defer rows.Close()

	var matches []rag.VectorMatch
	for rows.Next() {
		var m rag.VectorMatch
		var md []byte
		if err := rows.Scan(&m.ID, &m.Content, &md, &m.Score); err != nil {
			return nil, wrap("scan vector", err)
		}
		if len(md) > 0 {
			if err := json.Unmarshal(md, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate vectors", err)
	}
	rag.SortMatches(matches)
	return matches, nil
}

// Delete removes rows by id
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE workspace = $1 AND id = ANY($2)`, s.table),
		s.workspace, ids)
	return wrap("delete vectors", err)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
