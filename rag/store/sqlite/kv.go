package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// KVStore implements rag.KVStore on the graphrag_kv table
type KVStore struct {
	db        *sql.DB
	workspace string
	namespace string
}

// NewKVStore creates a KV store for namespace
func NewKVStore(db *sql.DB, workspace, namespace string) *KVStore {
	return &KVStore{db: db, workspace: workspaceOrDefault(workspace), namespace: namespace}
}

// Get loads the value of key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM graphrag_kv WHERE workspace = ? AND namespace = ? AND id = ?`,
		s.workspace, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get kv", err)
	}
	return []byte(value), true, nil
}

// Set upserts the value of key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graphrag_kv (workspace, namespace, id, value, update_time)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (workspace, namespace, id) DO UPDATE SET
			value = excluded.value,
			update_time = excluded.update_time`,
		s.workspace, s.namespace, key, string(value))
	return wrap("set kv", err)
}

// BatchGet loads all present keys in one query
func (s *KVStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(keys)+2)
	args = append(args, s.workspace, s.namespace)
	for _, k := range keys {
		args = append(args, k)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, value FROM graphrag_kv WHERE workspace = ? AND namespace = ? AND id IN (%s)`,
		placeholders(len(keys))), args...)
	if err != nil {
		return nil, wrap("batch get kv", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return nil, wrap("scan kv", err)
		}
		out[id] = []byte(value)
	}
	return out, wrap("iterate kv", rows.Err())
}

// Exists reports whether key is present
func (s *KVStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM graphrag_kv WHERE workspace = ? AND namespace = ? AND id = ?)`,
		s.workspace, s.namespace, key).Scan(&ok)
	if err != nil {
		return false, wrap("check kv", err)
	}
	return ok, nil
}

// Delete removes keys
func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+2)
	args = append(args, s.workspace, s.namespace)
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM graphrag_kv WHERE workspace = ? AND namespace = ? AND id IN (%s)`,
		placeholders(len(keys))), args...)
	return wrap("delete kv", err)
}
