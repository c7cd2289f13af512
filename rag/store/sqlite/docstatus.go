package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smallnest/graphrag/rag"
)

// DocStatusStore implements rag.DocStatusStore on graphrag_doc_status
type DocStatusStore struct {
	db        *sql.DB
	workspace string
}

// NewDocStatusStore creates a doc-status store
func NewDocStatusStore(db *sql.DB, workspace string) *DocStatusStore {
	return &DocStatusStore{db: db, workspace: workspaceOrDefault(workspace)}
}

// SetStatus upserts the record of a document
func (s *DocStatusStore) SetStatus(ctx context.Context, status rag.DocumentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphrag_doc_status (workspace, id, status, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workspace, id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		s.workspace, status.ID, string(status.Status), string(data), status.UpdatedAt)
	return wrap("set doc status", err)
}

// GetStatus loads the record of id
func (s *DocStatusStore) GetStatus(ctx context.Context, id string) (*rag.DocumentStatus, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM graphrag_doc_status WHERE workspace = ? AND id = ?`,
		s.workspace, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rag.NotFoundError("document", id)
	}
	if err != nil {
		return nil, wrap("get doc status", err)
	}
	var st rag.DocumentStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &st, nil
}

// Delete removes the record of id
func (s *DocStatusStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM graphrag_doc_status WHERE workspace = ? AND id = ?`, s.workspace, id)
	return wrap("delete doc status", err)
}

// ListByStatus loads every record in status ordered by id
func (s *DocStatusStore) ListByStatus(ctx context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM graphrag_doc_status WHERE workspace = ? AND status = ? ORDER BY id`,
		s.workspace, string(status))
	if err != nil {
		return nil, wrap("list doc status", err)
	}
	defer rows.Close()

	var out []rag.DocumentStatus
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("scan doc status", err)
		}
		var st rag.DocumentStatus
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		out = append(out, st)
	}
	return out, wrap("iterate doc status", rows.Err())
}
