package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hush/pkg/metrics"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveHistory(op, status, time.Since(start))
}

func (s *RedisStore) Exists(ctx context.Context, key string) (found bool, err error) {
	defer func(start time.Time) { observe("exists", start, err) }(time.Now())

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (ok bool, err error) {
	defer func(start time.Time) { observe("setnx", start, err) }(time.Now())

	ok, err = s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("set", start, err) }(time.Now())

	if err = s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe("del", start, err) }(time.Now())

	if err = s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMany(ctx context.Context, keys ...string) (out map[string]string, err error) {
	defer func(start time.Time) { observe("mget", start, err) }(time.Now())

	out = make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	vals, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET failed: %w", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (n int64, err error) {
	defer func(start time.Time) { observe("incr", start, err) }(time.Now())

	k := s.key(key)
	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if ttl > 0 {
			pipe.ExpireNX(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis INCR failed: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (ttl time.Duration, err error) {
	defer func(start time.Time) { observe("ttl", start, err) }(time.Now())

	ttl, err = s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis PTTL failed: %w", err)
	}
	// -1 (no expiry) and -2 (missing) both read as zero.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) PushRecent(ctx context.Context, key, value string, maxLen int, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("push", start, err) }(time.Now())

	k := s.key(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, k, value)
		if maxLen > 0 {
			pipe.LTrim(ctx, k, 0, int64(maxLen-1))
		}
		if ttl > 0 {
			pipe.PExpire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis LPUSH failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, key string, limit int) (vals []string, err error) {
	defer func(start time.Time) { observe("recent", start, err) }(time.Now())

	if limit <= 0 {
		return nil, nil
	}
	vals, err = s.client.LRange(ctx, s.key(key), 0, int64(limit-1)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE failed: %w", err)
	}
	return vals, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
