package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when Redis is not configured
type MemoryStore struct {
	mu      sync.Mutex
	fills   singleflight.Group
	entries map[string]memoryEntry
	sets    map[string][]ScoredMember
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string][]ScoredMember),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(key)
}

func (m *MemoryStore) getLocked(key string) ([]byte, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, ErrKeyNotFound
	}
	return e.data, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, data, ttl)
	return nil
}

func (m *MemoryStore) setLocked(key string, data []byte, ttl time.Duration) {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
		delete(m.sets, k)
	}
	return nil
}

// GetOrSet computes a missing key once however many callers ask for it.
// Fills of different keys run independently; fn runs without the store lock
// and may use the store itself.
func (m *MemoryStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (interface{}, error)) ([]byte, error) {
	if data, err := m.Get(ctx, key); err == nil {
		return data, nil
	}

	v, err, _ := m.fills.Do(key, func() (interface{}, error) {
		if data, err := m.Get(ctx, key); err == nil {
			return data, nil
		}
		value, err := fn()
		if err != nil {
			return nil, err
		}
		data, store, err := prepareFill(value)
		if err != nil {
			return nil, err
		}
		if store {
			m.mu.Lock()
			m.setLocked(key, data, ttl)
			m.mu.Unlock()
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ReplaceSortedSet stores members; ttl is not enforced for sets
func (m *MemoryStore) ReplaceSortedSet(_ context.Context, key string, members []ScoredMember, _ time.Duration) error {
	sorted := append([]ScoredMember(nil), members...)
	sortScored(sorted)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(sorted) == 0 {
		delete(m.sets, key)
		return nil
	}
	m.sets[key] = sorted
	return nil
}

func (m *MemoryStore) TopScored(_ context.Context, key string, n int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	if int64(len(set)) > n {
		set = set[:n]
	}
	return append([]ScoredMember(nil), set...), nil
}
