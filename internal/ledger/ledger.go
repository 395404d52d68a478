// Package ledger provides the rolling-window usage counter store backing
// the router's rate-limit accounting. The store contract is deliberately
// small: atomic increment-with-TTL and batched multi-get. Single-instance
// gateways use the in-process MemoryStore; multi-instance fleets share a
// RedisStore.
package ledger

import (
	"context"
	"log/slog"
	"time"
)

// CounterStore is a key-value counter store with rolling expiry.
//
// Both operations are safe under arbitrary concurrent callers. The
// asynchronous hot path is plain goroutines over these same methods: the
// implementations never hold locks across I/O, so many calls may be in
// flight without head-of-line blocking.
type CounterStore interface {
	// IncrBy atomically adds delta to the counter at key, creating it at
	// delta if absent, and resets its expiry to ttl from now. Returns the
	// new value.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// BatchGet reads many keys in one round trip. The result has the same
	// order and length as keys; missing or expired keys read as 0.
	BatchGet(ctx context.Context, keys []string) ([]int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// GoIncrBy runs IncrBy on its own goroutine with a bounded timeout,
// logging and swallowing any failure. The increment already corresponds to
// a request that happened; losing it degrades rate-limit accuracy but must
// never block or fail the caller.
func GoIncrBy(store CounterStore, logger *slog.Logger, timeout time.Duration, key string, delta int64, ttl time.Duration) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := store.IncrBy(ctx, key, delta, ttl); err != nil {
			logger.Warn("usage counter increment dropped",
				"key", key,
				"delta", delta,
				"error", err,
			)
		}
	}()
}
