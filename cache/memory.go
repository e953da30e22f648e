package cache

import (
	"strings"
	"sync"
)

const defaultMaxEntries = 1000

// memoryStore is the in-process fallback tier: a bounded map with
// insertion-order FIFO displacement and no TTL. Overwriting an existing key
// keeps its original position in the eviction order.
type memoryStore struct {
	mu         sync.Mutex
	entries    map[string][]byte
	order      []string
	maxEntries int
}

func newMemoryStore(maxEntries int) *memoryStore {
	return &memoryStore{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

func (m *memoryStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok
}

func (m *memoryStore) set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = data

	if len(m.entries) > m.maxEntries {
		m.evictOldest()
	}
}

// evictOldest drops the oldest ~10% of entries in insertion order.
// Simple FIFO, not LRU: reads do not refresh an entry's position.
func (m *memoryStore) evictOldest() {
	n := m.maxEntries / 10
	if n < 1 {
		n = 1
	}
	if n > len(m.order) {
		n = len(m.order)
	}
	for _, key := range m.order[:n] {
		delete(m.entries, key)
	}
	m.order = m.order[n:]
}

func (m *memoryStore) clearPrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	for _, key := range m.order {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		} else {
			kept = append(kept, key)
		}
	}
	m.order = kept
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
