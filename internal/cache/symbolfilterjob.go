package cache

import (
	"context"
	"time"

	"ocengine/internal/logger"
	"ocengine/internal/model"
)

// ExchangeInfoSource is the subset of venue.Exchange the refresh job needs.
type ExchangeInfoSource interface {
	Name() string
	GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error)
}

// FilterPersister is the subset of *store.Store the refresh job writes
// through, so the in-memory snapshot survives a restart.
type FilterPersister interface {
	BulkUpsertSymbolFilters(filters []model.SymbolFilter) error
}

// SymbolFilterJob periodically pulls exchange-info from every registered
// venue and replaces that venue's slice of the Symbol-Filter Cache, per
// spec.md §4.1. One job drives every venue the engine trades on.
type SymbolFilterJob struct {
	cache    *SymbolFilterCache
	store    FilterPersister
	venues   []ExchangeInfoSource
	interval time.Duration
}

func NewSymbolFilterJob(c *SymbolFilterCache, st FilterPersister, interval time.Duration, venues ...ExchangeInfoSource) *SymbolFilterJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SymbolFilterJob{cache: c, store: st, venues: venues, interval: interval}
}

// RefreshAll pulls exchange-info from every registered venue once,
// replacing the cache snapshot and persisting to the store so restarts
// don't trade blind while the first refresh is in flight.
func (j *SymbolFilterJob) RefreshAll(ctx context.Context) {
	for _, v := range j.venues {
		filters, err := v.GetExchangeInfo(ctx)
		if err != nil {
			logger.Warnf("symbolfilter job: %s exchange info: %v", v.Name(), err)
			continue
		}
		j.cache.ReplaceSnapshot(v.Name(), filters)
		if err := j.store.BulkUpsertSymbolFilters(filters); err != nil {
			logger.Warnf("symbolfilter job: %s persist filters: %v", v.Name(), err)
		}
	}
}

// Run drives the periodic refresh loop until stop is closed.
func (j *SymbolFilterJob) Run(ctx context.Context, stop <-chan struct{}) {
	j.RefreshAll(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.RefreshAll(ctx)
		case <-stop:
			return
		}
	}
}
