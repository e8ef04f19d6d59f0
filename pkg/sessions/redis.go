package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
)

// redisStore backs session bindings with Redis so every gateway replica
// sees the same affinity table. The TTL is applied per key on write.
type redisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. A ttl of zero uses
// DefaultTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "mcpgw:session:" + sessionID
}

func (s *redisStore) Get(ctx context.Context, sessionID string) (string, error) {
	target, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", gwerrors.NewBackendUnavailableError("redis session get failed", err)
	}
	return target, nil
}

func (s *redisStore) Set(ctx context.Context, sessionID, targetURL string) error {
	if err := s.client.Set(ctx, sessionKey(sessionID), targetURL, s.ttl).Err(); err != nil {
		return gwerrors.NewBackendUnavailableError("redis session set failed", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return nil
}
