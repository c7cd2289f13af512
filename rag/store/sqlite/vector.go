package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/memory"
)

// VectorStore implements rag.VectorStore with a full scan over graphrag_vectors
type VectorStore struct {
	db        *sql.DB
	workspace string
	namespace string
	dimension int
}

// NewVectorStore creates a vector store for namespace
func NewVectorStore(db *sql.DB, workspace, namespace string, dimension int) *VectorStore {
	return &VectorStore{db: db, workspace: workspaceOrDefault(workspace), namespace: namespace, dimension: dimension}
}

// Dimension returns the embedding size
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// CheckDimension fails with rag.ErrDimensionMismatch when rows already
// stored for the namespace were written with another dimension
func (s *VectorStore) CheckDimension(ctx context.Context) error {
	var embJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM graphrag_vectors WHERE workspace = ? AND namespace = ? LIMIT 1`,
		s.workspace, s.namespace).Scan(&embJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return wrap("check vector dimension", err)
	}
	var emb []float32
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	if len(emb) != s.dimension {
		return fmt.Errorf("namespace %s: %w", s.namespace, rag.DimensionError(s.dimension, len(emb)))
	}
	return nil
}

// Upsert writes all records in one transaction
func (s *VectorStore) Upsert(ctx context.Context, records ...rag.VectorRecord) error {
	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("record %s: %w", r.ID, rag.DimensionError(s.dimension, len(r.Embedding)))
		}
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert vectors", err)
	}
	for _, r := range records {
		emb, err := json.Marshal(r.Embedding)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		md := r.Metadata
		if md == nil {
			md = map[string]any{}
		}
		mdJSON, err := json.Marshal(md)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graphrag_vectors (workspace, namespace, id, content, metadata, embedding)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (workspace, namespace, id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				embedding = excluded.embedding`,
			s.workspace, s.namespace, r.ID, r.Content, string(mdJSON), string(emb)); err != nil {
			_ = tx.Rollback()
			return wrap("upsert vector", err)
		}
	}
	return wrap("upsert vectors", tx.Commit())
}

// Query scores every row of the namespace and keeps the best topK
func (s *VectorStore) Query(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]rag.VectorMatch, error) {
	if len(embedding) != s.dimension {
		return nil, rag.DimensionError(s.dimension, len(embedding))
	}
	if topK <= 0 {
		return []rag.VectorMatch{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM graphrag_vectors WHERE workspace = ? AND namespace = ?`,
		s.workspace, s.namespace)
	if err != nil {
		return nil, wrap("query vectors", err)
	}
	defer rows.Close()

	var matches []rag.VectorMatch
	for rows.Next() {
		var id, content, mdJSON, embJSON string
		if err := rows.Scan(&id, &content, &mdJSON, &embJSON); err != nil {
			return nil, wrap("scan vector", err)
		}
		var md map[string]any
		if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if !rag.MatchesFilter(md, filter) {
			continue
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
		if len(emb) != s.dimension {
			return nil, fmt.Errorf("vector %s: %w", id, rag.DimensionError(s.dimension, len(emb)))
		}
		matches = append(matches, rag.VectorMatch{
			ID:       id,
			Score:    memory.CosineSimilarity(embedding, emb),
			Content:  content,
			Metadata: md,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate vectors", err)
	}

	rag.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes rows by id
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, s.workspace, s.namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM graphrag_vectors WHERE workspace = ? AND namespace = ? AND id IN (%s)`,
		placeholders(len(ids))), args...)
	return wrap("delete vectors", err)
}
