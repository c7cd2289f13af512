package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/graphrag/rag"
)

// DocStatusStore keeps one JSON record per document plus one set of ids per status
type DocStatusStore struct {
	client redis.UniversalClient
	prefix string
}

// NewDocStatusStore creates a doc-status store using opts.Prefix
func NewDocStatusStore(client redis.UniversalClient, opts Options, workspace string) *DocStatusStore {
	return &DocStatusStore{
		client: client,
		prefix: prefixOrDefault(opts.Prefix) + workspaceOrDefault(workspace) + ":" + rag.NamespaceDocStatus + ":",
	}
}

func (s *DocStatusStore) docKey(id string) string {
	return s.prefix + "doc:" + id
}

func (s *DocStatusStore) statusKey(status rag.DocStatus) string {
	return s.prefix + "status:" + string(status)
}

// SetStatus stores the record and moves its id to the set of its status
func (s *DocStatusStore) SetStatus(ctx context.Context, status rag.DocumentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	prev, err := s.GetStatus(ctx, status.ID)
	if err != nil && !rag.IsNotFound(err) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.docKey(status.ID), data, 0)
	if prev != nil && prev.Status != status.Status {
		pipe.SRem(ctx, s.statusKey(prev.Status), status.ID)
	}
	pipe.SAdd(ctx, s.statusKey(status.Status), status.ID)
	_, err = pipe.Exec(ctx)
	return wrap("set doc status", err)
}

// Delete removes the record and its id from the status set
func (s *DocStatusStore) Delete(ctx context.Context, id string) error {
	prev, err := s.GetStatus(ctx, id)
	if rag.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.docKey(id))
	pipe.SRem(ctx, s.statusKey(prev.Status), id)
	_, err = pipe.Exec(ctx)
	return wrap("delete doc status", err)
}

// GetStatus loads the record of id
func (s *DocStatusStore) GetStatus(ctx context.Context, id string) (*rag.DocumentStatus, error) {
	data, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, rag.NotFoundError("document", id)
	}
	if err != nil {
		return nil, wrap("get doc status", err)
	}
	var st rag.DocumentStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &st, nil
}

// ListByStatus loads every record in status ordered by id
func (s *DocStatusStore) ListByStatus(ctx context.Context, status rag.DocStatus) ([]rag.DocumentStatus, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, wrap("list doc status", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("list doc status", err)
	}

	out := make([]rag.DocumentStatus, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var st rag.DocumentStatus
		if err := json.Unmarshal([]byte(str), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		// the set may briefly lag a concurrent move
		if st.Status == status {
			out = append(out, st)
		}
	}
	return out, nil
}
