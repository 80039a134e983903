package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps documents directly in Redis. Useful when Redis is the
// only durable backend available.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store. Keys never expire.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, namespace string, kind Kind) ([]byte, error) {
	data, err := s.rdb.Get(ctx, docKey(namespace, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *RedisStore) Put(ctx context.Context, namespace string, kind Kind, data []byte) error {
	return s.rdb.Set(ctx, docKey(namespace, kind), data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, namespace string, kind Kind) error {
	return s.rdb.Del(ctx, docKey(namespace, kind)).Err()
}

// CachedStore wraps a primary Store (PostgreSQL or SQLite) with a Redis
// read-through cache. Writes go to the primary store and refresh the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then cache) ---

func (s *CachedStore) Put(ctx context.Context, namespace string, kind Kind, data []byte) error {
	if err := s.primary.Put(ctx, namespace, kind, data); err != nil {
		return err
	}
	s.rdb.Set(ctx, docKey(namespace, kind), data, s.ttl)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, namespace string, kind Kind) error {
	if err := s.primary.Delete(ctx, namespace, kind); err != nil {
		return err
	}
	s.rdb.Del(ctx, docKey(namespace, kind))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Get(ctx context.Context, namespace string, kind Kind) ([]byte, error) {
	if data, err := s.rdb.Get(ctx, docKey(namespace, kind)).Bytes(); err == nil {
		return data, nil
	}

	// Cache miss: read from primary.
	data, err := s.primary.Get(ctx, namespace, kind)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, docKey(namespace, kind), data, s.ttl)
	return data, nil
}
