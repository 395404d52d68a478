package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore.
//
// Characteristics:
//   - Fast: no network calls, nanosecond latency
//   - Local-only: counters are not shared across instances
//   - No persistence: counters are lost on restart
//
// Use cases:
//   - Single-instance deployments
//   - Development and testing
//   - Fallback when Redis is unavailable
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	done     chan struct{}
	stopOnce sync.Once
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

const memorySweepInterval = time.Minute

// NewMemoryStore creates a new in-process counter store. A background
// sweeper reclaims expired counters; Close stops it.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		counters: make(map[string]*memoryCounter),
		done:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// IncrBy atomically adds delta to the counter at key and resets its expiry.
func (m *MemoryStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memoryCounter{}
		m.counters[key] = c
	}
	c.value += delta
	c.expiresAt = now.Add(ttl)
	return c.value, nil
}

// BatchGet reads many keys at once; expired or missing keys read as 0.
func (m *MemoryStore) BatchGet(_ context.Context, keys []string) ([]int64, error) {
	now := time.Now()
	values := make([]int64, len(keys))

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, key := range keys {
		if c, ok := m.counters[key]; ok && now.Before(c.expiresAt) {
			values[i] = c.value
		}
	}
	return values, nil
}

// Close stops the background sweeper and drops all counters.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]*memoryCounter)
	return nil
}

func (m *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, c := range m.counters {
				if now.After(c.expiresAt) {
					delete(m.counters, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
