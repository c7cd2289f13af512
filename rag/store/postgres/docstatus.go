package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/smallnest/graphrag/rag"
)

// DocStatusStore implements rag.DocStatusStore on the graphrag_doc_status table
type DocStatusStore struct {
	pool      DBPool
	workspace string
}

// NewDocStatusStore creates a doc-status store on an existing pool
func NewDocStatusStore(pool DBPool, workspace string) *DocStatusStore {
	return &DocStatusStore{pool: pool, workspace: workspaceOrDefault(workspace)}
}

// InitSchema creates the status table if it doesn't exist
func (s *DocStatusStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS graphrag_doc_status (
			workspace VARCHAR(255) NOT NULL,
			id VARCHAR(255) NOT NULL,
			status VARCHAR(64) NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (workspace, id)
		);
		CREATE INDEX IF NOT EXISTS idx_graphrag_doc_status_status ON graphrag_doc_status (workspace, status)`)
	return wrap("create doc status schema", err)
}

// SetStatus upserts the record of a document
func (s *DocStatusStore) SetStatus(ctx context.Context, status rag.DocumentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO graphrag_doc_status (workspace, id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace, id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		s.workspace, status.ID, string(status.Status), data, status.CreatedAt, status.UpdatedAt)
	return wrap("set doc status", err)
}

// Delete removes the record of id
func (s *DocStatusStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM graphrag_doc_status WHERE workspace = $1 AND id = $2`, s.workspace, id)
	return wrap("delete doc status", err)
}

// GetStatus loads the record of id
func (s *DocStatusStore) GetStatus(ctx context.Context, id string) (*rag.DocumentStatus, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM graphrag_doc_status WHERE workspace = $1 AND id = $2`,
		s.workspace, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rag.NotFoundError("document", id)
	}
	if err != nil {
		return nil, wrap("get doc status", err)
	}
	var st rag.DocumentStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &st, nil
}

// ListByStatus loads every record in status ordered by id
func (s *DocStatusStore) ListByStatus(ctx context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM graphrag_doc_status WHERE workspace = $1 AND status = $2 ORDER BY id`,
		s.workspace, string(status))
	if err != nil {
		return nil, wrap("list doc status", err)
	}
	defer rows.Close()

	var out []rag.DocumentStatus
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("scan doc status", err)
		}
		var st rag.DocumentStatus
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		out = append(out, st)
	}
	return out, wrap("iterate doc status", rows.Err())
}
