package ratelimit

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"
)

// admitScript increments KEYS[1] only while it is below ARGV[1] and starts
// the window on the first call.
var admitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return 0
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore keeps the counters in Redis so several processes share limits.
type RedisStore struct {
    rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
    return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Admit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
    secs := int(window / time.Second)
    if secs < 1 {
        secs = 1
    }
    res, err := admitScript.Run(ctx, s.rdb, []string{key}, limit, secs).Int()
    if err != nil {
        return false, fmt.Errorf("rate limit script: %w", err)
    }
    return res == 1, nil
}

func (s *RedisStore) Usage(ctx context.Context, key string) (int, time.Duration, error) {
    var count *redis.StringCmd
    var ttl *redis.DurationCmd
    _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
        count = p.Get(ctx, key)
        ttl = p.TTL(ctx, key)
        return nil
    })
    if err != nil && !errors.Is(err, redis.Nil) {
        return 0, 0, fmt.Errorf("rate limit usage: %w", err)
    }
    n, err := count.Int()
    if errors.Is(err, redis.Nil) {
        return 0, 0, nil
    }
    if err != nil {
        return 0, 0, fmt.Errorf("rate limit count: %w", err)
    }
    left := ttl.Val()
    if left < 0 {
        left = 0
    }
    return n, left, nil
}
