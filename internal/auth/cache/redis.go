package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis 6.2+ (GETDEL, SET ... GET).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore namespaces every key with prefix, which may be empty.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	return raw, mapRedis("get", err)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	return raw, mapRedis("getdel", err)
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Swap(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, error) {
	old, err := s.client.SetArgs(ctx, s.key(key), value, redis.SetArgs{Get: true, TTL: ttl}).Result()
	if err != nil {
		return nil, mapRedis("set get", err)
	}
	return []byte(old), nil
}

// Incr runs INCR and EXPIRE NX in one MULTI/EXEC, so a counter never
// outlives its window. EXPIRE NX needs redis 7.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := s.key(key)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if ttl > 0 {
			pipe.ExpireNX(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func mapRedis(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
