// Package postgres implements every rag storage contract on PostgreSQL.
//
// All stores take a DBPool, so one pgxpool.Pool (or a pgxmock pool in
// tests) can serve the KV, vector, graph and doc-status stores at once.
// Records are scoped by workspace; vectors use the pgvector extension
// and are ranked by cosine distance.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/graphrag/rag"
)

const backend = "postgres"

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Options configures the connection
type Options struct {
	ConnString string
	MaxConns   int32
}

// ConnString builds a libpq URL from its parts
func ConnString(host string, port int, user, password, database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, port, database)
}

// NewPool creates the connection pool shared by all postgres stores
func NewPool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, rag.Unavailable(backend, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, rag.Unavailable(backend, "ping", err)
	}
	return pool, nil
}

// wrap classifies err: server-side SQL errors keep their identity, context
// errors pass through, everything else means the backend is unreachable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return rag.Unavailable(backend, op, err)
}

func withTx(ctx context.Context, pool DBPool, op string, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return wrap(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return wrap(op, tx.Commit(ctx))
}

func workspaceOrDefault(ws string) string {
	if ws == "" {
		return rag.DefaultWorkspace
	}
	return ws
}

var identRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func sanitizeIdent(s string) string {
	return identRe.ReplaceAllString(s, "_")
}
