package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

// redisStore is the distributed-cache backend. Each record lives under its
// own key and a set holds the name index used by List. The index and the
// record keys are not written atomically, so List tolerates names whose
// record is gone.
type redisStore[T any] struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store for the given record kind.
// The kind partitions the keyspace so adapters and tools never collide.
func NewRedisStore[T any](client redis.UniversalClient, kind string) Store[T] {
	return &redisStore[T]{
		client:    client,
		keyPrefix: fmt.Sprintf("mcpgw:%s:", kind),
	}
}

func (s *redisStore[T]) recordKey(name string) string {
	return s.keyPrefix + "record:" + name
}

func (s *redisStore[T]) indexKey() string {
	return s.keyPrefix + "names"
}

func (s *redisStore[T]) TryGet(ctx context.Context, name string) (*T, error) {
	raw, err := s.client.Get(ctx, s.recordKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, gwerrors.NewBackendUnavailableError("redis get failed", err)
	}
	return decode[T](raw)
}

func (s *redisStore[T]) Upsert(ctx context.Context, name string, record *T) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", name, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(name), raw, 0)
	pipe.SAdd(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return gwerrors.NewBackendUnavailableError("redis upsert failed", err)
	}
	return nil
}

func (s *redisStore[T]) Delete(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(name))
	pipe.SRem(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return gwerrors.NewBackendUnavailableError("redis delete failed", err)
	}
	return nil
}

func (s *redisStore[T]) List(ctx context.Context) ([]*T, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, gwerrors.NewBackendUnavailableError("redis list failed", err)
	}

	out := make([]*T, 0, len(names))
	for _, name := range names {
		record, err := s.TryGet(ctx, name)
		if err != nil {
			return nil, err
		}
		if record == nil {
			// Index entry without a record: a concurrent delete got halfway
			// through. Drop the name from the result.
			logger.Debugf("Dropping indexed name without record: %s", name)
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
