package embedcache

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quarry:emb:"

// RedisStore is the shared backend for multi-instance deployments.
// Eviction is TTL-driven on the Redis side; lookup failures degrade to a
// cache miss so Redis being down never breaks ingestion.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	misses atomic.Int64 // failed round-trips, reported as evictions proxy
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("embedcache: redis get failed: %v", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		log.Printf("embedcache: corrupt cache entry %s: %v", key[:12], err)
		return nil, false
	}
	return vec, true
}

func (s *RedisStore) Set(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		s.misses.Add(1)
		log.Printf("embedcache: redis set failed: %v", err)
	}
}

func (s *RedisStore) Entries(ctx context.Context) int {
	var total int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 1000).Result()
		if err != nil {
			return total
		}
		total += len(keys)
		if next == 0 {
			return total
		}
		cursor = next
	}
}

func (s *RedisStore) Evictions() int64 {
	return s.misses.Load()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
