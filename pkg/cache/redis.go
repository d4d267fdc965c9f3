package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/richxcame/safecommute/pkg/logger"
	redisclient "github.com/richxcame/safecommute/pkg/redis"
	"go.uber.org/zap"
)

// RedisStore shares entries between service instances. Values are JSON encoded
// together with their expiry. Redis failures degrade to misses.
type RedisStore[V any] struct {
	client redisclient.ClientInterface
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store whose keys are namespaced by prefix.
func NewRedisStore[V any](client redisclient.ClientInterface, prefix string) *RedisStore[V] {
	return &RedisStore[V]{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore[V]) key(key string) string {
	return s.prefix + ":" + key
}

// Get reads and decodes the entry for key.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool) {
	raw, err := s.client.GetString(ctx, s.key(key))
	if err != nil {
		if !redisclient.IsNil(err) {
			logger.WarnContext(ctx, "redis cache read failed", zap.String("key", s.key(key)), zap.Error(err))
		}
		return Entry[V]{}, false
	}

	var entry Entry[V]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.WarnContext(ctx, "discarding undecodable cache entry", zap.String("key", s.key(key)), zap.Error(err))
		return Entry[V]{}, false
	}
	if entry.Expired(s.now()) {
		return Entry[V]{}, false
	}
	return entry, true
}

// Set writes the entry with a Redis expiry matching ExpiresAt.
func (s *RedisStore[V]) Set(ctx context.Context, key string, entry Entry[V]) {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode cache entry", zap.String("key", s.key(key)), zap.Error(err))
		return
	}
	if err := s.client.SetWithExpiration(ctx, s.key(key), string(data), ttl); err != nil {
		logger.WarnContext(ctx, "redis cache write failed", zap.String("key", s.key(key)), zap.Error(err))
	}
}

func (s *RedisStore[V]) setClock(now func() time.Time) {
	s.now = now
}
