// Package cache holds the three snapshot/LRU in-memory caches the hot path
// reads: Symbol-Filter Cache, Strategy Cache, Open-Price Cache (spec.md
// §4.1-§4.3). Each cache guards its state with its own mutex, and readers
// take that lock briefly; reads are not lock-free.
package cache

import (
	"sync"

	"ocengine/internal/metrics"
	"ocengine/internal/model"
	"ocengine/internal/symbol"
)

type symbolFilterKey struct {
	Venue  string
	Symbol string
}

// SymbolFilterCache is a read-through, snapshot-swapped map from
// (venue, symbol) to precision constraints. A missing entry means
// "not tradable" per spec.md §4.1.
type SymbolFilterCache struct {
	mu       sync.RWMutex
	snapshot map[symbolFilterKey]model.SymbolFilter
}

func NewSymbolFilterCache() *SymbolFilterCache {
	return &SymbolFilterCache{snapshot: make(map[symbolFilterKey]model.SymbolFilter)}
}

// Get returns the filter for (venue, symbol), or false if absent.
func (c *SymbolFilterCache) Get(venue, sym string) (model.SymbolFilter, bool) {
	key := symbolFilterKey{Venue: venue, Symbol: symbol.Normalize(sym)}
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.snapshot[key]
	return f, ok
}

// BulkUpsert merges filters into the current snapshot without touching
// entries for other venues/symbols.
func (c *SymbolFilterCache) BulkUpsert(filters []model.SymbolFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range filters {
		key := symbolFilterKey{Venue: f.Venue, Symbol: symbol.Normalize(f.Symbol)}
		c.snapshot[key] = f
	}
	metrics.CacheSize.WithLabelValues("symbol_filter").Set(float64(len(c.snapshot)))
}

// ReplaceSnapshot atomically replaces every entry for one venue, deleting
// symbols no longer present in filtersForVenue. This is the contract the
// external symbol-info refresh job uses (spec.md §4.1).
func (c *SymbolFilterCache) ReplaceSnapshot(venue string, filtersForVenue []model.SymbolFilter) {
	fresh := make(map[symbolFilterKey]model.SymbolFilter, len(filtersForVenue))
	for _, f := range filtersForVenue {
		fresh[symbolFilterKey{Venue: venue, Symbol: symbol.Normalize(f.Symbol)}] = f
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.snapshot {
		if key.Venue == venue {
			delete(c.snapshot, key)
		}
	}
	for key, f := range fresh {
		c.snapshot[key] = f
	}
	metrics.CacheSize.WithLabelValues("symbol_filter").Set(float64(len(c.snapshot)))
}

// Len reports the current entry count, for the debug-cache-inspection API.
func (c *SymbolFilterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshot)
}
