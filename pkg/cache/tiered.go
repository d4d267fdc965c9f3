package cache

import (
	"context"
	"time"
)

// TieredStore reads stores in order and backfills earlier tiers on a later hit.
// Writes go to every tier.
type TieredStore[V any] struct {
	tiers []Store[V]
}

// NewTieredStore combines stores, fastest first.
func NewTieredStore[V any](tiers ...Store[V]) *TieredStore[V] {
	return &TieredStore[V]{tiers: tiers}
}

// Get returns the first tier's hit.
func (s *TieredStore[V]) Get(ctx context.Context, key string) (Entry[V], bool) {
	for i, tier := range s.tiers {
		entry, ok := tier.Get(ctx, key)
		if !ok {
			continue
		}
		for _, earlier := range s.tiers[:i] {
			earlier.Set(ctx, key, entry)
		}
		return entry, true
	}
	return Entry[V]{}, false
}

// Set writes entry to every tier.
func (s *TieredStore[V]) Set(ctx context.Context, key string, entry Entry[V]) {
	for _, tier := range s.tiers {
		tier.Set(ctx, key, entry)
	}
}

// Purge purges every tier that supports it.
func (s *TieredStore[V]) Purge(now time.Time) int {
	removed := 0
	for _, tier := range s.tiers {
		if purger, ok := tier.(Purger); ok {
			removed += purger.Purge(now)
		}
	}
	return removed
}

func (s *TieredStore[V]) setClock(now func() time.Time) {
	for _, tier := range s.tiers {
		if clocked, ok := tier.(clockSetter); ok {
			clocked.setClock(now)
		}
	}
}
