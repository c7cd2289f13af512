// Package sqlite implements every rag storage contract on a single SQLite file.
//
// All stores share one *sql.DB opened with Open. Vectors are kept as JSON
// arrays and ranked by a full scan, which suits small single-user indexes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/smallnest/graphrag/rag"
)

const backend = "sqlite"

// Open opens the database at path with a single writer connection
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, rag.Unavailable(backend, "open", err)
	}
	return db, nil
}

// InitSchema creates every table used by the sqlite stores
func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS graphrag_kv (
			workspace TEXT NOT NULL,
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			value TEXT NOT NULL,
			update_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (workspace, namespace, id)
		);
		CREATE TABLE IF NOT EXISTS graphrag_vectors (
			workspace TEXT NOT NULL,
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding TEXT NOT NULL,
			PRIMARY KEY (workspace, namespace, id)
		);
		CREATE TABLE IF NOT EXISTS graphrag_graph_nodes (
			workspace TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (workspace, id)
		);
		CREATE TABLE IF NOT EXISTS graphrag_graph_edges (
			workspace TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (workspace, source_id, target_id)
		);
		CREATE INDEX IF NOT EXISTS idx_graphrag_graph_edges_target ON graphrag_graph_edges (workspace, target_id);
		CREATE TABLE IF NOT EXISTS graphrag_doc_status (
			workspace TEXT NOT NULL,
			id TEXT NOT NULL,
			status TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (workspace, id)
		);
		CREATE INDEX IF NOT EXISTS idx_graphrag_doc_status_status ON graphrag_doc_status (workspace, status);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code != sqlite3.ErrBusy && serr.Code != sqlite3.ErrLocked && serr.Code != sqlite3.ErrCantOpen {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return rag.Unavailable(backend, op, err)
}

func workspaceOrDefault(ws string) string {
	if ws == "" {
		return rag.DefaultWorkspace
	}
	return ws
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
