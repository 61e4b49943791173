package cache

import (
	"context"
	"sync"
	"time"

	"ocengine/internal/bucket"
	"ocengine/internal/logger"
	"ocengine/internal/marketdata"
	"ocengine/internal/metrics"
)

// Source provenance tags, spec.md §3 OpenPriceCacheEntry.
const (
	SourceWSBucketOpen        = "ws_bucket_open"
	SourceWSLatestCandleOpen  = "ws_latest_candle_open"
	SourceWSPrevClose         = "ws_prev_close"
	SourceRESTOHLCV           = "rest_ohlcv"
	SourceFallbackCurrentPrice = "fallback_current_price"
	SourceCache               = "cache"
)

// OpenPriceEntry is one resolved (venue, symbol, interval, bucket_start)
// open price with provenance, exclusively owned by the Open-Price Cache.
type OpenPriceEntry struct {
	Open       float64
	LastUpdate time.Time
	Source     string
}

// OpenPriceCache resolves the open price of the current bucket with the
// tiered fallback of spec.md §4.3, memoizing admission at the event-loop
// scale and LRU/TTL-evicting stale entries. The LRU bookkeeping (move-to-
// front on hit) needs mutual exclusion even on the hit path, so this cache
// trades the "wait-free reads" ideal of spec.md §5 for a single mutex
// guarding both the LRU and the memo layer; the memo layer keeps that
// critical section O(1) and off the hot path for repeated ticks in the
// same ~1s window.
type OpenPriceCache struct {
	mu      sync.Mutex
	lru     *lruTTL
	memo    *lruTTL // short-lived per-bucket memo to absorb bursty ticks

	klineSources map[string]marketdata.KlineSource // by venue
	restGateways map[string]*marketdata.RESTKlineGateway

	restEnabled          bool
	openPrimeToleranceMs int64
	maxPrevCloseGapBkts  int
	strictPrevCloseGap   bool
}

type OpenPriceCacheConfig struct {
	Size                 int
	TTL                  time.Duration
	MemoWindow           time.Duration
	RESTEnabled          bool
	OpenPrimeToleranceMs int
	MaxPrevCloseGapBkts  int
	StrictPrevCloseGap   bool
}

func NewOpenPriceCache(cfg OpenPriceCacheConfig) *OpenPriceCache {
	return &OpenPriceCache{
		lru:                  newLRUTTL(cfg.Size, cfg.TTL.Nanoseconds()),
		memo:                 newLRUTTL(cfg.Size, cfg.MemoWindow.Nanoseconds()),
		klineSources:         make(map[string]marketdata.KlineSource),
		restGateways:         make(map[string]*marketdata.RESTKlineGateway),
		restEnabled:          cfg.RESTEnabled,
		openPrimeToleranceMs: int64(cfg.OpenPrimeToleranceMs),
		maxPrevCloseGapBkts:  cfg.MaxPrevCloseGapBkts,
		strictPrevCloseGap:   cfg.StrictPrevCloseGap,
	}
}

// RegisterVenue wires one venue's WS kline buffer and, if REST fallback is
// enabled, its governed REST gateway.
func (c *OpenPriceCache) RegisterVenue(venue string, src marketdata.KlineSource, gw *marketdata.RESTKlineGateway) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.klineSources[venue] = src
	if gw != nil {
		c.restGateways[venue] = gw
	}
}

// Resolve returns the open price for (venue, symbol, interval, bucketStart).
// forOrder gates tier 4 (fallback_current_price), which spec.md §4.3
// forbids for the order path. currentPrice is only consulted by tier 4.
func (c *OpenPriceCache) Resolve(ctx context.Context, venue, sym, interval string, bucketStart int64, forOrder bool, currentPrice float64) (OpenPriceEntry, bool) {
	key := bucket.Key{Venue: venue, Symbol: sym, Interval: interval, BucketStart: bucketStart}.String()
	now := time.Now()
	nowNanos := now.UnixNano()

	if v, ok := c.memoGet(key, nowNanos); ok {
		entry := v.(OpenPriceEntry)
		metrics.OpenPriceSourceTotal.WithLabelValues(SourceCache).Inc()
		return entry, true
	}

	if v, ok := c.lruGet(key, nowNanos); ok {
		entry := v.(OpenPriceEntry)
		c.memoSet(key, entry, nowNanos)
		metrics.OpenPriceSourceTotal.WithLabelValues(SourceCache).Inc()
		return entry, true
	}

	intervalMs, err := bucket.IntervalMs(interval)
	if err != nil {
		return OpenPriceEntry{}, false
	}

	c.mu.Lock()
	src := c.klineSources[venue]
	gw := c.restGateways[venue]
	c.mu.Unlock()

	if src != nil {
		// Tier 1: exact bucket_start candle in the WS buffer.
		if open, ok := src.GetKlineOpen(sym, interval, bucketStart); ok {
			entry := OpenPriceEntry{Open: open, LastUpdate: now, Source: SourceWSBucketOpen}
			c.store(key, entry, nowNanos)
			return entry, true
		}

		// Tier 2: latest buffered candle, only if its start equals
		// bucketStart (otherwise it is some other bucket entirely).
		if latest, ok := src.GetLatestCandle(sym, interval); ok && latest.OpenTime == bucketStart {
			entry := OpenPriceEntry{Open: latest.Open, LastUpdate: now, Source: SourceWSLatestCandleOpen}
			c.store(key, entry, nowNanos)
			return entry, true
		}

		// Tier 3: previous bucket's close as an approximation.
		prevBucketStart := bucketStart - intervalMs
		if prevClose, ok := src.GetKlineClose(sym, interval, prevBucketStart); ok {
			gapBuckets := 1 // exactly one bucket behind by construction
			if !forOrder || !c.strictPrevCloseGap || gapBuckets <= c.maxPrevCloseGapBkts {
				entry := OpenPriceEntry{Open: prevClose, LastUpdate: now, Source: SourceWSPrevClose}
				c.store(key, entry, nowNanos)
				logger.Warnf("openprice: using ws_prev_close for %s %s %s bucket=%d (less accurate)", venue, sym, interval, bucketStart)
				return entry, true
			}
		}
	}

	// REST fallback tier, off by default, governed by the gateway.
	if c.restEnabled && gw != nil {
		staleMs := now.UnixMilli() - bucketStart
		if staleMs >= c.openPrimeToleranceMs {
			if k, err, attempted := gw.Fetch(ctx, sym, interval, bucketStart); attempted && err == nil {
				entry := OpenPriceEntry{Open: k.Open, LastUpdate: now, Source: SourceRESTOHLCV}
				c.store(key, entry, nowNanos)
				return entry, true
			}
		}
	}

	// Tier 4: current price, alert path only. The order path must skip.
	if !forOrder {
		entry := OpenPriceEntry{Open: currentPrice, LastUpdate: now, Source: SourceFallbackCurrentPrice}
		c.store(key, entry, nowNanos)
		return entry, true
	}

	return OpenPriceEntry{}, false
}

func (c *OpenPriceCache) store(key string, entry OpenPriceEntry, nowNanos int64) {
	metrics.OpenPriceSourceTotal.WithLabelValues(entry.Source).Inc()
	c.lruSet(key, entry, nowNanos)
	c.memoSet(key, entry, nowNanos)
}

func (c *OpenPriceCache) lruGet(key string, now int64) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.get(key, now)
}

func (c *OpenPriceCache) lruSet(key string, v interface{}, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if evictedKey, evicted := c.lru.set(key, v, now); evicted {
		metrics.CacheEvictionsTotal.WithLabelValues("open_price", "lru").Inc()
		_ = evictedKey
	}
	metrics.CacheSize.WithLabelValues("open_price").Set(float64(c.lru.len()))
}

func (c *OpenPriceCache) memoGet(key string, now int64) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo.get(key, now)
}

func (c *OpenPriceCache) memoSet(key string, v interface{}, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo.set(key, v, now)
}

// Sweep evicts TTL-expired entries from both the main LRU and the memo
// layer; run periodically by a background task.
func (c *OpenPriceCache) Sweep() (lruRemoved, memoRemoved int) {
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	lruRemoved = c.lru.sweep(now)
	memoRemoved = c.memo.sweep(now)
	if lruRemoved > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("open_price", "ttl").Add(float64(lruRemoved))
	}
	metrics.CacheSize.WithLabelValues("open_price").Set(float64(c.lru.len()))
	return lruRemoved, memoRemoved
}

// Len reports the current entry count of the main LRU layer, for the
// debug-cache-inspection API.
func (c *OpenPriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.len()
}

// Run drives the periodic TTL sweep until stop is closed.
func (c *OpenPriceCache) Run(stop <-chan struct{}, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}
