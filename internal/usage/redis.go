package usage

import (
    "context"
    "errors"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisCounter is a Counter shared by every replica through Redis.
type RedisCounter struct {
    rdb redis.UniversalClient
}

func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
    return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
    n, err := c.rdb.Get(ctx, key).Int64()
    if errors.Is(err, redis.Nil) { return 0, nil }
    return n, err
}

// Incr bumps the key and (re)arms its expiry in one transaction.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
    pipe := c.rdb.TxPipeline()
    incr := pipe.Incr(ctx, key)
    if ttl > 0 { pipe.Expire(ctx, key, ttl) }
    if _, err := pipe.Exec(ctx); err != nil { return 0, err }
    return incr.Val(), nil
}

var raiseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if n > cur then
  if tonumber(ARGV[2]) > 0 then
    redis.call('SET', KEYS[1], n, 'PX', ARGV[2])
  else
    redis.call('SET', KEYS[1], n)
  end
  return n
end
return cur
`)

func (c *RedisCounter) Raise(ctx context.Context, key string, n int64, ttl time.Duration) error {
    return raiseScript.Run(ctx, c.rdb, []string{key}, n, ttl.Milliseconds()).Err()
}
