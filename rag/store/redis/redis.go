// Package redis implements the rag KV and doc-status contracts on Redis.
//
// Stores accept a redis.UniversalClient so the same client can also back
// the FalkorDB graph store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
)

const backend = "redis"

// Options configuration for Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "graphrag:"
	TTL      time.Duration // Expiration for KV values, default 0 (no expiration)
}

// NewClient creates the client shared by all redis stores and pings it
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, rag.Unavailable(backend, "ping", err)
	}
	return client, nil
}

func prefixOrDefault(p string) string {
	if p == "" {
		return "graphrag:"
	}
	return p
}

func workspaceOrDefault(ws string) string {
	if ws == "" {
		return rag.DefaultWorkspace
	}
	return ws
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
