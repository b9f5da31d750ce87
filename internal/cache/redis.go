package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores one hash per key (EXPIRE provides the TTL) and a sorted
// set ordering keys by last use, scored by a monotonic counter.
//
//	<prefix>entry:<key>  hash{hash, value, inserted_at, ttl_ms}
//	<prefix>lru          zset member=<key> score=<seq>
//	<prefix>seq          counter
type RedisCache struct {
	rdb      redis.UniversalClient
	prefix   string
	capacity int
	clock    clockwork.Clock
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rdb redis.UniversalClient, prefix string, capacity int, clock clockwork.Clock) *RedisCache {
	if capacity < 1 {
		capacity = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisCache{rdb: rdb, prefix: prefix, capacity: capacity, clock: clock}
}

func (c *RedisCache) entryKey(key string) string { return c.prefix + "entry:" + key }
func (c *RedisCache) lruKey() string             { return c.prefix + "lru" }
func (c *RedisCache) seqKey() string             { return c.prefix + "seq" }

func (c *RedisCache) touch(ctx context.Context, key string) error {
	seq, err := c.rdb.Incr(ctx, c.seqKey()).Result()
	if err != nil {
		return err
	}
	return c.rdb.ZAdd(ctx, c.lruKey(), redis.Z{Score: float64(seq), Member: key}).Err()
}

func (c *RedisCache) load(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, c.entryKey(key)).Result()
	if err != nil {
		return Entry{}, false, backendError(err, "read")
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}
	e := Entry{Key: key, Hash: fields["hash"], Value: fields["value"]}
	e.InsertedAt, _ = time.Parse(time.RFC3339Nano, fields["inserted_at"])
	if ms, err := strconv.ParseInt(fields["ttl_ms"], 10, 64); err == nil {
		e.TTL = time.Duration(ms) * time.Millisecond
	}
	return e, true, nil
}

func (c *RedisCache) Get(ctx context.Context, key, hash string) (string, bool, error) {
	e, ok, err := c.load(ctx, key)
	if err != nil {
		return "", false, err
	}
	if !ok {
		// expired by redis; drop the dangling recency member
		_ = c.rdb.ZRem(ctx, c.lruKey(), key).Err()
		return "", false, nil
	}
	if e.Hash != hash {
		return "", false, nil
	}
	if err := c.touch(ctx, key); err != nil {
		return "", false, backendError(err, "touch")
	}
	return e.Value, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key, hash, value string, ttl time.Duration) error {
	seq, err := c.rdb.Incr(ctx, c.seqKey()).Result()
	if err != nil {
		return backendError(err, "write")
	}
	ek := c.entryKey(key)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ek)
		pipe.HSet(ctx, ek,
			"hash", hash,
			"value", value,
			"inserted_at", c.clock.Now().UTC().Format(time.RFC3339Nano),
			"ttl_ms", strconv.FormatInt(ttl.Milliseconds(), 10))
		if ttl > 0 {
			pipe.PExpire(ctx, ek, ttl)
		}
		pipe.ZAdd(ctx, c.lruKey(), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	if err != nil {
		return backendError(err, "write")
	}
	return c.evict(ctx)
}

func (c *RedisCache) evict(ctx context.Context) error {
	n, err := c.rdb.ZCard(ctx, c.lruKey()).Result()
	if err != nil {
		return backendError(err, "evict")
	}
	over := n - int64(c.capacity)
	if over <= 0 {
		return nil
	}
	// expired entries leave their recency member behind; drop those first
	pruned, err := c.Sweep(ctx)
	if err != nil {
		return err
	}
	over -= int64(pruned)
	if over <= 0 {
		return nil
	}
	victims, err := c.rdb.ZPopMin(ctx, c.lruKey(), over).Result()
	if err != nil {
		return backendError(err, "evict")
	}
	keys := make([]string, 0, len(victims))
	for _, z := range victims {
		if member, ok := z.Member.(string); ok {
			keys = append(keys, c.entryKey(member))
		}
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return backendError(err, "evict")
		}
	}
	return nil
}

func (c *RedisCache) Peek(ctx context.Context, key string) (Entry, bool, error) {
	return c.load(ctx, key)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.entryKey(key))
		pipe.ZRem(ctx, c.lruKey(), key)
		return nil
	})
	if err != nil {
		return backendError(err, "delete")
	}
	return nil
}

// Sweep drops recency members whose entry hash has already expired in redis.
func (c *RedisCache) Sweep(ctx context.Context) (int, error) {
	members, err := c.rdb.ZRange(ctx, c.lruKey(), 0, -1).Result()
	if err != nil {
		return 0, backendError(err, "sweep")
	}
	removed := 0
	for _, m := range members {
		n, err := c.rdb.Exists(ctx, c.entryKey(m)).Result()
		if err != nil {
			return removed, backendError(err, "sweep")
		}
		if n == 0 {
			if err := c.rdb.ZRem(ctx, c.lruKey(), m).Err(); err != nil {
				return removed, backendError(err, "sweep")
			}
			removed++
		}
	}
	return removed, nil
}

// Len counts recency members; entries expired since the last Sweep are included.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := c.rdb.ZCard(ctx, c.lruKey()).Result()
	if err != nil {
		return 0, backendError(err, "len")
	}
	return int(n), nil
}
