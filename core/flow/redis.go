package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// failScript increments the attempt counter and starts its window on the
// first attempt, so the window is not extended by later failures.
var failScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLockoutStore shares lockout state between server processes.
type RedisLockoutStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLockoutStore uses "mentorship:lockout:" when prefix is empty.
func NewRedisLockoutStore(client redis.UniversalClient, prefix string) *RedisLockoutStore {
	if prefix == "" {
		prefix = "mentorship:lockout:"
	}
	return &RedisLockoutStore{client: client, prefix: prefix}
}

func (s *RedisLockoutStore) attemptsKey(key string) string { return s.prefix + "failures:" + key }
func (s *RedisLockoutStore) lockKey(key string) string     { return s.prefix + "locked:" + key }

func (s *RedisLockoutStore) Fail(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := failScript.Run(ctx, s.client, []string{s.attemptsKey(key)}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis lockout: fail %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisLockoutStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.attemptsKey(key)).Err(); err != nil {
		return fmt.Errorf("redis lockout: reset %s: %w", key, err)
	}
	return nil
}

// Lock stores the deadline in unix milliseconds and lets redis expire it.
func (s *RedisLockoutStore) Lock(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.lockKey(key), until.UnixMilli(), ttl)
		pipe.Del(ctx, s.attemptsKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis lockout: lock %s: %w", key, err)
	}
	return nil
}

func (s *RedisLockoutStore) LockedUntil(ctx context.Context, key string) (time.Time, error) {
	ms, err := s.client.Get(ctx, s.lockKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis lockout: read %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}
