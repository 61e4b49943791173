package cache

import (
	"sync"
	"time"

	"ocengine/internal/logger"
	"ocengine/internal/metrics"
	"ocengine/internal/model"
	"ocengine/internal/store"
	"ocengine/internal/symbol"
)

type strategyKey struct {
	Venue  string
	Symbol string
}

// strategySource is the subset of *store.Store the Strategy Cache refreshes
// from; kept as an interface so tests can substitute a fake.
type strategySource interface {
	ListActiveStrategies() ([]model.Strategy, error)
}

// StrategyCache gives O(1) lookup of candidate strategies per tick,
// refreshed periodically and on demand from the store (spec.md §4.2).
type StrategyCache struct {
	mu       sync.RWMutex
	snapshot map[strategyKey][]model.Strategy

	source   strategySource
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewStrategyCache(source strategySource, refreshInterval time.Duration) *StrategyCache {
	return &StrategyCache{
		snapshot: make(map[strategyKey][]model.Strategy),
		source:   source,
		interval: refreshInterval,
	}
}

// GetStrategies returns active strategies for (venue, symbol), accepting
// denormalized symbol input (spec.md §4.2 mandates normalization before
// lookup).
func (c *StrategyCache) GetStrategies(venue, sym string) []model.Strategy {
	key := strategyKey{Venue: venue, Symbol: symbol.Normalize(sym)}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot[key]
}

// Refresh forces an immediate reload from the store (used at startup and by
// the force-refresh debug endpoint).
func (c *StrategyCache) Refresh() error {
	strategies, err := c.source.ListActiveStrategies()
	if err != nil {
		return err
	}

	fresh := make(map[strategyKey][]model.Strategy)
	for _, st := range strategies {
		key := strategyKey{Venue: st.Venue, Symbol: symbol.Normalize(st.Symbol)}
		fresh[key] = append(fresh[key], st)
	}

	c.mu.Lock()
	c.snapshot = fresh
	c.mu.Unlock()

	metrics.CacheSize.WithLabelValues("strategy").Set(float64(len(strategies)))
	return nil
}

// Len reports the number of (venue, symbol) keys currently cached, for the
// debug-cache-inspection API.
func (c *StrategyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshot)
}

// Run starts the periodic refresh loop; call in a goroutine, stop by closing stop.
func (c *StrategyCache) Run(stop <-chan struct{}) {
	if err := c.Refresh(); err != nil {
		logger.Warnf("strategy cache: initial refresh failed: %v", err)
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(); err != nil {
				logger.Warnf("strategy cache: periodic refresh failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}

var _ strategySource = (*store.Store)(nil)
