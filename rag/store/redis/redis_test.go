package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestKVStore(t *testing.T) {
	_, client := newClient(t)
	storetest.KV(t, NewKVStore(client, Options{}, "", rag.NamespaceFullDocs))
}

func TestDocStatusStore(t *testing.T) {
	_, client := newClient(t)
	storetest.DocStatus(t, NewDocStatusStore(client, Options{}, ""))
}

func TestKVStoreKeys(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	kv := NewKVStore(client, Options{Prefix: "test:", TTL: time.Minute}, "ws", rag.NamespaceTextChunks)
	require.NoError(t, kv.Set(ctx, "chunk-1", []byte(`{}`)))

	assert.True(t, mr.Exists("test:ws:text_chunks:chunk-1"))
	assert.Equal(t, time.Minute, mr.TTL("test:ws:text_chunks:chunk-1"))

	other := NewKVStore(client, Options{Prefix: "test:"}, "other", rag.NamespaceTextChunks)
	_, ok, err := other.Get(ctx, "chunk-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocStatusMovesBetweenSets(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	s := NewDocStatusStore(client, Options{}, "")

	require.NoError(t, s.SetStatus(ctx, rag.DocumentStatus{ID: "doc-1", Status: rag.StatusPending}))
	require.NoError(t, s.SetStatus(ctx, rag.DocumentStatus{ID: "doc-1", Status: rag.StatusProcessed}))

	members, err := mr.Members("graphrag:default:doc_status:status:processed")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, members)
	assert.False(t, mr.Exists("graphrag:default:doc_status:status:pending"))

	pending, err := s.ListByStatus(ctx, rag.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUnavailable(t *testing.T) {
	mr, client := newClient(t)
	kv := NewKVStore(client, Options{}, "", rag.NamespaceFullDocs)
	addr := mr.Addr()
	mr.Close()

	err := kv.Set(context.Background(), "k", []byte(`1`))
	assert.ErrorIs(t, err, rag.ErrStorageUnavailable)

	_, err = NewClient(context.Background(), Options{Addr: addr})
	assert.ErrorIs(t, err, rag.ErrStorageUnavailable)
}
