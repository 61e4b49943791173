// Package consumer implements the Tick Consumer hot loop of spec.md §4.4:
// per-symbol throttling, batching with a timeout, in-batch dedup to
// latest-per-symbol, bounded-concurrency detector dispatch, and an
// allSettled fan-out to per-bot Order Services.
package consumer

import (
	"context"
	"sync"
	"time"

	"ocengine/internal/detector"
	"ocengine/internal/logger"
	"ocengine/internal/metrics"
)

// OrderRouter dispatches one match to the bot's Order Service. Implemented
// by internal/orderservice.Router. Errors are isolated per call (allSettled).
type OrderRouter interface {
	Route(ctx context.Context, match detector.Match) error
}

// ExtendChecker optionally re-checks resting counter-trend LIMIT entries
// against every admitted tick, not just matched ones (spec.md §4.7/§8 S4).
// internal/orderservice.Router implements this; the assertion in New is a
// no-op if the router doesn't.
type ExtendChecker interface {
	CheckExtend(ctx context.Context, t detector.Tick)
}

type Config struct {
	MinTickIntervalMs int64
	BatchSize         int
	BatchTimeout      time.Duration
	TickConcurrency   int
	QueueCapacity     int
}

// Consumer owns the tick intake queue and the batch loop goroutine.
type Consumer struct {
	cfg      Config
	detector *detector.Detector
	router   OrderRouter
	extend   ExtendChecker // nil if router doesn't implement it

	queueMu sync.Mutex
	queue   []detector.Tick

	lastProcessedMu sync.Mutex
	lastProcessed   map[string]int64 // per (venue,symbol) -> last processed tick timestamp ms

	wake chan struct{}
}

func New(cfg Config, d *detector.Detector, router OrderRouter) *Consumer {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10000
	}
	if cfg.TickConcurrency <= 0 {
		cfg.TickConcurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	extend, _ := router.(ExtendChecker)
	return &Consumer{
		cfg:           cfg,
		detector:      d,
		router:        router,
		extend:        extend,
		lastProcessed: make(map[string]int64),
		wake:          make(chan struct{}, 1),
	}
}

// Push enqueues one ingress tick. Non-finite or non-positive prices are
// discarded silently (spec.md §4.4 edge cases). When the queue is at
// capacity, the oldest queued tick is dropped to favor freshness.
func (c *Consumer) Push(t detector.Tick) {
	if t.Price <= 0 {
		return
	}

	c.queueMu.Lock()
	if len(c.queue) >= c.cfg.QueueCapacity {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		metrics.TicksDroppedTotal.WithLabelValues(dropped.Venue, "backpressure").Inc()
	}
	c.queue = append(c.queue, t)
	full := len(c.queue) >= c.cfg.BatchSize
	c.queueMu.Unlock()

	metrics.TicksReceivedTotal.WithLabelValues(t.Venue).Inc()
	if !full {
		return // Run picks it up when batch_timeout fires
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run drives the batch loop: drain up to batch_size ticks or wait
// batch_timeout, whichever comes first, then process the batch.
func (c *Consumer) Run(ctx context.Context) {
	timer := time.NewTimer(c.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-timer.C:
		}

		batch := c.drain()
		if len(batch) > 0 {
			c.processBatch(ctx, batch)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.cfg.BatchTimeout)
	}
}

func (c *Consumer) drain() []detector.Tick {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	n := len(c.queue)
	if n > c.cfg.BatchSize {
		n = c.cfg.BatchSize
	}
	batch := make([]detector.Tick, n)
	copy(batch, c.queue[:n])
	c.queue = c.queue[n:]
	return batch
}

// processBatch dedups to latest-per-symbol (by arrival order, which
// preserves timestamp order since a single ingress stream is monotonic per
// symbol), throttles, then dispatches up to tick_concurrency detector
// invocations concurrently.
func (c *Consumer) processBatch(ctx context.Context, batch []detector.Tick) {
	metrics.BatchSize.Observe(float64(len(batch)))

	latest := make(map[string]detector.Tick, len(batch))
	order := make([]string, 0, len(batch))
	for _, t := range batch {
		key := t.Venue + "|" + t.Symbol
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		if prev, ok := latest[key]; !ok || t.Timestamp >= prev.Timestamp {
			latest[key] = t
		}
	}

	sem := make(chan struct{}, c.cfg.TickConcurrency)
	var wg sync.WaitGroup
	for _, key := range order {
		t := latest[key]
		if !c.admit(key, t.Timestamp) {
			metrics.TicksDroppedTotal.WithLabelValues(t.Venue, "throttle").Inc()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t detector.Tick) {
			defer wg.Done()
			defer func() { <-sem }()
			if c.extend != nil {
				c.extend.CheckExtend(ctx, t)
			}
			matches := c.detector.Detect(ctx, t)
			c.dispatch(ctx, matches)
		}(t)
	}
	wg.Wait()
}

// admit applies the per-symbol min_tick_interval_ms throttle against the
// last processed timestamp for this (venue,symbol).
func (c *Consumer) admit(key string, ts int64) bool {
	c.lastProcessedMu.Lock()
	defer c.lastProcessedMu.Unlock()
	prev, ok := c.lastProcessed[key]
	if ok && ts-prev < c.cfg.MinTickIntervalMs {
		return false
	}
	c.lastProcessed[key] = ts
	return true
}

// dispatch routes each match to its bot's Order Service with allSettled
// semantics: one failing route must not cancel or block the others.
func (c *Consumer) dispatch(ctx context.Context, matches []detector.Match) {
	if len(matches) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, m := range matches {
		wg.Add(1)
		go func(m detector.Match) {
			defer wg.Done()
			metrics.MatchesTotal.WithLabelValues(m.Result.Strategy.Venue, string(m.Result.Direction)).Inc()
			if err := c.router.Route(ctx, m); err != nil {
				logger.Errorf("consumer: route match strategy=%s bot=%s: %v", m.Result.Strategy.ID, m.Result.Strategy.BotID, err)
			}
		}(m)
	}
	wg.Wait()
}
