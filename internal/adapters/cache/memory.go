package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Set scans for expired entries.
const sweepEvery = time.Minute

type memEntry struct {
	value   []byte
	expires time.Time
	tags    []string
}

// MemoryCache is a process-local ResponseCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	tags    map[string]map[string]struct{}
	now     func() time.Time
	swept   time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: map[string]memEntry{},
		tags:    map[string]map[string]struct{}{},
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		m.removeLocked(key)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now := m.now(); now.Sub(m.swept) >= sweepEvery {
		m.sweepLocked(now)
		m.swept = now
	}
	m.removeLocked(key)
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.entries[key] = memEntry{value: value, expires: exp, tags: tags}
	for _, t := range tags {
		set, ok := m.tags[t]
		if !ok {
			set = map[string]struct{}{}
			m.tags[t] = set
		}
		set[key] = struct{}{}
	}
	return nil
}

func (m *MemoryCache) InvalidateTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.tags[tag] {
		m.removeLocked(key)
	}
	delete(m.tags, tag)
	return nil
}

// Sweep drops every expired entry and reports how many went.
func (m *MemoryCache) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.swept = now
	return m.sweepLocked(now)
}

func (m *MemoryCache) sweepLocked(now time.Time) int {
	n := 0
	for key, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			m.removeLocked(key)
			n++
		}
	}
	return n
}

func (m *MemoryCache) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, t := range e.tags {
		if set, ok := m.tags[t]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.tags, t)
			}
		}
	}
}
