package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVStore implements rag.KVStore with one Redis string per key
type KVStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewKVStore creates a KV store for namespace using opts.Prefix and opts.TTL
func NewKVStore(client redis.UniversalClient, opts Options, workspace, namespace string) *KVStore {
	return &KVStore{
		client: client,
		prefix: prefixOrDefault(opts.Prefix) + workspaceOrDefault(workspace) + ":" + namespace + ":",
		ttl:    opts.TTL,
	}
}

func (s *KVStore) key(id string) string {
	return s.prefix + id
}

// Get loads the value of key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get kv", err)
	}
	return data, true, nil
}

// Set stores the value of key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	return wrap("set kv", s.client.Set(ctx, s.key(key), value, s.ttl).Err())
}

// BatchGet loads all present keys with one MGET
func (s *KVStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, wrap("batch get kv", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

// Exists reports whether key is present
func (s *KVStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, wrap("check kv", err)
	}
	return n > 0, nil
}

// Delete removes keys
func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return wrap("delete kv", s.client.Del(ctx, full...).Err())
}
