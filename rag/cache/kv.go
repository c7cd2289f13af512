package cache

import (
	"context"
	"time"

	"github.com/smallnest/graphrag/rag"
)

// Entry is the persisted form of a cached completion
type Entry struct {
	Text      string     `json:"return"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// KVCache keeps completions in a rag.KVStore
type KVCache struct {
	kv  rag.KVStore
	ttl time.Duration
	now func() time.Time
}

// NewKVCache creates a cache on kv. A zero ttl keeps entries forever.
func NewKVCache(kv rag.KVStore, ttl time.Duration) *KVCache {
	return &KVCache{kv: kv, ttl: ttl, now: time.Now}
}

// Get returns the cached text; expired entries are misses
func (c *KVCache) Get(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := rag.GetJSON[Entry](ctx, c.kv, key)
	if err != nil || !ok {
		return "", false, err
	}
	if e.ExpiresAt != nil && c.now().After(*e.ExpiresAt) {
		return "", false, nil
	}
	return e.Text, true, nil
}

// Put stores text under key
func (c *KVCache) Put(ctx context.Context, key, text string) error {
	now := c.now()
	e := Entry{Text: text, CreatedAt: now}
	if c.ttl > 0 {
		exp := now.Add(c.ttl)
		e.ExpiresAt = &exp
	}
	return rag.SetJSON(ctx, c.kv, key, e)
}
