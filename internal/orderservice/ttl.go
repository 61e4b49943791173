package orderservice

import (
	"sync"
	"time"
)

// ttlFlagCache is an expiring set: Set(key, ttl) marks key present until
// ttl elapses. One mutex guards all keys. Used for both the per-strategy
// open-position admission cache and the failure-cooldown map, keyed by
// strategy_id (spec.md §4.8).
type ttlFlagCache struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func newTTLFlagCache() *ttlFlagCache {
	return &ttlFlagCache{expires: make(map[string]time.Time)}
}

func (c *ttlFlagCache) Set(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[key] = time.Now().Add(ttl)
}

func (c *ttlFlagCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.expires[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.expires, key)
		return false
	}
	return true
}

// Sweep removes all expired entries and returns how many it removed. The
// Order Service does not run it on a timer; outside Sweep, an expired key is
// only dropped when Has reads it.
func (c *ttlFlagCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, until := range c.expires {
		if now.After(until) {
			delete(c.expires, k)
			removed++
		}
	}
	return removed
}
