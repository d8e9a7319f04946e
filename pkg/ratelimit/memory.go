package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Counters are per process, so limits
// are enforced per instance rather than globally.
type MemoryStore struct {
	mu            sync.Mutex
	buckets       map[string]*bucket
	now           func() time.Time
	requestCount  int
	cleanupEvery  int
	cleanupAtSize int
}

type bucket struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:       make(map[string]*bucket),
		now:           time.Now,
		cleanupEvery:  100,
		cleanupAtSize: 1000,
	}
}

// Increment implements Store.
func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.requestCount++
	if m.requestCount%m.cleanupEvery == 0 || len(m.buckets) > m.cleanupAtSize {
		m.cleanupExpired(now)
		if m.requestCount >= m.cleanupEvery*10 {
			m.requestCount = 0
		}
	}

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.expiresAt) {
		b = &bucket{expiresAt: now.Add(ttl)}
		m.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// Len returns the number of live buckets.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup drops expired buckets.
func (m *MemoryStore) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpired(m.now())
}

func (m *MemoryStore) cleanupExpired(now time.Time) {
	for key, b := range m.buckets {
		if !now.Before(b.expiresAt) {
			delete(m.buckets, key)
		}
	}
}
