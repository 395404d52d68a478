package routers

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-test CounterStore that records how many batched reads
// were issued and can be forced to fail.
type fakeStore struct {
	mu            sync.Mutex
	counters      map[string]int64
	batchGetCalls int
	incrCalls     int
	failReads     bool
	failWrites    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{counters: make(map[string]int64)}
}

func (f *fakeStore) IncrBy(_ context.Context, key string, delta int64, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrCalls++
	if f.failWrites {
		return 0, errors.New("fake store: write unavailable")
	}
	f.counters[key] += delta
	return f.counters[key], nil
}

func (f *fakeStore) BatchGet(_ context.Context, keys []string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchGetCalls++
	if f.failReads {
		return nil, errors.New("fake store: read unavailable")
	}
	values := make([]int64, len(keys))
	for i, key := range keys {
		values[i] = f.counters[key]
	}
	return values, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) set(key string, value int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key] = value
}

func (f *fakeStore) get(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key]
}

func (f *fakeStore) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchGetCalls
}
