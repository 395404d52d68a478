package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modelmux/modelmux/internal/metrics"
)

// incrWithTTLScript increments a counter and refreshes its expiry in one
// atomic step, so a counter can never survive without a TTL.
const incrWithTTLScript = `
local value = redis.call('INCRBY', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return value
`

// RedisStore implements CounterStore on Redis, sharing counters across all
// gateway instances. Increments run through a Lua script for atomicity of
// value and TTL; batched reads use a single MGET round trip.
type RedisStore struct {
	client     redis.UniversalClient
	keyPrefix  string
	incrScript *redis.Script
}

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default: "modelmux:usage").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.keyPrefix = prefix
	}
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:     client,
		keyPrefix:  "modelmux:usage",
		incrScript: redis.NewScript(incrWithTTLScript),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// IncrBy atomically adds delta to the counter at key and resets its expiry.
func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	start := time.Now()
	result, err := r.incrScript.Run(ctx, r.client, []string{r.prefixKey(key)}, delta, ttl.Milliseconds()).Result()
	metrics.ObserveLedgerOp("incr", start, err)
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	value, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("redis incr %s: unexpected result type %T", key, result)
	}
	return value, nil
}

// BatchGet reads many counters in one MGET; missing keys read as 0.
func (r *RedisStore) BatchGet(ctx context.Context, keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefixKey(key)
	}

	start := time.Now()
	vals, err := r.client.MGet(ctx, prefixed...).Result()
	metrics.ObserveLedgerOp("batch_get", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	values := make([]int64, len(keys))
	for i, val := range vals {
		if val == nil {
			continue
		}
		switch v := val.(type) {
		case string:
			values[i], _ = strconv.ParseInt(v, 10, 64)
		case int64:
			values[i] = v
		}
	}
	return values, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisStore) Close() error {
	return nil
}

func (r *RedisStore) prefixKey(key string) string {
	return r.keyPrefix + ":" + key
}
