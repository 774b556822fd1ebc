package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// staleAfter is how long an untouched bucket survives cleanup.
const staleAfter = time.Hour

type bucket struct {
	tokens     int
	refilledAt time.Time
	touchedAt  time.Time
}

// MemoryStore keeps buckets in process. Use the redis store when several
// instances share the limits.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

type MemoryStoreOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore starts a sweeper removing buckets idle for an hour.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	go ms.sweep(5 * time.Minute)
	return ms
}

func (ms *MemoryStore) ConsumeTokens(_ context.Context, key string, tokens int, limit Limit) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	b, ok := ms.buckets[key]
	if !ok {
		b = &bucket{tokens: limit.Capacity, refilledAt: now}
		ms.buckets[key] = b
	}
	b.touchedAt = now

	// Whole intervals only; capped so a long idle bucket cannot overflow.
	if intervals := now.Sub(b.refilledAt) / limit.RefillInterval; intervals > 0 {
		maxIntervals := time.Duration(limit.Capacity/limit.RefillRate + 1)
		b.tokens = min(b.tokens+int(min(intervals, maxIntervals))*limit.RefillRate, limit.Capacity)
		b.refilledAt = b.refilledAt.Add(intervals * limit.RefillInterval)
	}
	// Buckets shrunk by a config change must not report more than capacity.
	b.tokens = min(b.tokens, limit.Capacity)

	resetAt := b.refilledAt.Add(limit.RefillInterval)
	if b.tokens < tokens {
		return b.tokens - tokens, resetAt, nil
	}
	b.tokens -= tokens
	return b.tokens, resetAt, nil
}

func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.buckets, key)
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (ms *MemoryStore) Close() error {
	ms.closeOnce.Do(func() { close(ms.stop) })
	return nil
}

func (ms *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			ms.mu.Lock()
			now := ms.now()
			for key, b := range ms.buckets {
				if now.Sub(b.touchedAt) > staleAfter {
					delete(ms.buckets, key)
				}
			}
			ms.mu.Unlock()
		}
	}
}
