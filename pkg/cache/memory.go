package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
}

// Memory is a bounded in-process cache. Expiry is lazy: entries are checked
// against their stored deadline on access and deleted there, never by a
// background sweeper. When an insert would exceed the configured maximum
// size, the oldest-inserted entry is evicted first. Updating an existing key
// keeps its original insertion position.
type Memory struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // newest inserted at front, eviction candidates at back
	now     func() time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source. Used by tests to control expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an in-process cache holding at most maxSize entries.
// It panics if maxSize is not positive.
func NewMemory(maxSize int, opts ...MemoryOption) *Memory {
	if maxSize <= 0 {
		panic("cache: memory cache size must be positive")
	}
	m := &Memory{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	entry := elem.Value.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.removeElement(elem)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	expiresAt := m.now().Add(normalizeTTL(ttl))

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = b
		entry.expiresAt = expiresAt
		return nil
	}

	if m.order.Len() >= m.maxSize {
		m.evictOldest()
	}
	m.items[key] = m.order.PushFront(&memoryEntry{key: key, value: b, expiresAt: expiresAt})
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(elem.Value.(*memoryEntry).expiresAt) {
		m.removeElement(elem)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been accessed.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Must be called with lock held.
func (m *Memory) evictOldest() {
	if elem := m.order.Back(); elem != nil {
		m.removeElement(elem)
	}
}

// Must be called with lock held.
func (m *Memory) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.items, elem.Value.(*memoryEntry).key)
}
