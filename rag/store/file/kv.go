package file

import (
	"context"
	"encoding/json"

	"github.com/smallnest/graphrag/rag/store/memory"
)

// KVStore is a rag.KVStore kept in one JSON object file
type KVStore struct {
	*memory.KVStore
	p *persister[map[string][]byte]
}

// OpenKVStore loads or creates the store at path
func OpenKVStore(path string) (*KVStore, error) {
	mem := memory.NewKVStore()
	var raw map[string]json.RawMessage
	if _, err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	data := make(map[string][]byte, len(raw))
	for k, v := range raw {
		data[k] = v
	}
	mem.Restore(data)

	return &KVStore{
		KVStore: mem,
		p: &persister[map[string][]byte]{
			path:     path,
			snapshot: mem.Snapshot,
			restore:  mem.Restore,
			encode: func(m map[string][]byte) any {
				out := make(map[string]json.RawMessage, len(m))
				for k, v := range m {
					out[k] = v
				}
				return out
			},
		},
	}, nil
}

// Set stores value under key and flushes the file
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	return s.p.mutate("kv.set", func() error {
		return s.KVStore.Set(ctx, key, value)
	})
}

// Delete removes keys and flushes the file
func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	return s.p.mutate("kv.delete", func() error {
		return s.KVStore.Delete(ctx, keys...)
	})
}
