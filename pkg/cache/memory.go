package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a mutex-guarded map. Entries are only removed
// when read after expiry or by Purge.
type MemoryStore[V any] struct {
	mu      sync.Mutex
	entries map[string]Entry[V]
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{
		entries: make(map[string]Entry[V]),
		now:     time.Now,
	}
}

// Get returns the entry for key, dropping it if expired.
func (s *MemoryStore[V]) Get(_ context.Context, key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	if entry.Expired(s.now()) {
		delete(s.entries, key)
		return Entry[V]{}, false
	}
	return entry, true
}

// Set replaces the entry for key.
func (s *MemoryStore[V]) Set(_ context.Context, key string, entry Entry[V]) {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Purge removes every entry expired at now and returns how many were dropped.
func (s *MemoryStore[V]) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore[V]) setClock(now func() time.Time) {
	s.now = now
}
