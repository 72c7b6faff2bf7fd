package cache

import (
	"context"
	"sync"
	"time"
)

// MockRedisClient is the in-process Store used when Redis is not configured
// and in tests
type MockRedisClient struct {
	mu     sync.Mutex
	data   map[string]mockEntry
	prefix string
	now    func() time.Time
}

type mockEntry struct {
	value   string
	expires time.Time
}

func NewMockRedisClient(prefix string) *MockRedisClient {
	return &MockRedisClient{
		data:   make(map[string]mockEntry),
		prefix: prefix,
		now:    time.Now,
	}
}

func (m *MockRedisClient) Close() error {
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.data[m.prefix+key]
	if !exists {
		return "", nil
	}
	if !entry.expires.IsZero() && m.now().After(entry.expires) {
		delete(m.data, m.prefix+key)
		return "", nil
	}
	return entry.value, nil
}

func (m *MockRedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := mockEntry{value: value}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.data[m.prefix+key] = entry
	return nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, m.prefix+key)
	return nil
}
