package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// KVStore implements rag.KVStore on the graphrag_kv table
type KVStore struct {
	pool      DBPool
	workspace string
	namespace string
}

// NewKVStore creates a KV store for namespace on an existing pool
func NewKVStore(pool DBPool, workspace, namespace string) *KVStore {
	return &KVStore{pool: pool, workspace: workspaceOrDefault(workspace), namespace: namespace}
}

// InitSchema creates the KV table if it doesn't exist
func (s *KVStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS graphrag_kv (
			workspace VARCHAR(255) NOT NULL,
			namespace VARCHAR(255) NOT NULL,
			id VARCHAR(255) NOT NULL,
			value JSONB NOT NULL,
			update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workspace, namespace, id)
		)`)
	return wrap("create kv schema", err)
}

// Get loads the value of key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM graphrag_kv WHERE workspace = $1 AND namespace = $2 AND id = $3`,
		s.workspace, s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get kv", err)
	}
	return value, true, nil
}

// Set upserts the value of key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graphrag_kv (workspace, namespace, id, value, update_time)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (workspace, namespace, id) DO UPDATE SET
			value = EXCLUDED.value,
			update_time = NOW()`,
		s.workspace, s.namespace, key, value)
	return wrap("set kv", err)
}

// BatchGet loads all present keys in one query
func (s *KVStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, value FROM graphrag_kv WHERE workspace = $1 AND namespace = $2 AND id = ANY($3)`,
		s.workspace, s.namespace, keys)
	if err != nil {
		return nil, wrap("batch get kv", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var value []byte
		if err := rows.Scan(&id, &value); err != nil {
			return nil, wrap("scan kv", err)
		}
		out[id] = value
	}
	return out, wrap("iterate kv", rows.Err())
}

// Exists reports whether key is present
func (s *KVStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM graphrag_kv WHERE workspace = $1 AND namespace = $2 AND id = $3)`,
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
	_, err := s.pool.Exec(ctx,
		`DELETE FROM graphrag_kv WHERE workspace = $1 AND namespace = $2 AND id = ANY($3)`,
		s.workspace, s.namespace, keys)
	return wrap("delete kv", err)
}
