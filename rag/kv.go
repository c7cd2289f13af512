package rag

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON loads key from kv and decodes it into T
func GetJSON[T any](ctx context.Context, kv KVStore, key string) (*T, bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return &v, true, nil
}

// SetJSON encodes v and stores it under key
func SetJSON(ctx context.Context, kv KVStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}
