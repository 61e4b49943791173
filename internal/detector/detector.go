package detector

import (
	"context"
	"math"
	"sync"

	"ocengine/internal/bucket"
	"ocengine/internal/cache"
	"ocengine/internal/logger"
	"ocengine/internal/model"
	"ocengine/internal/symbol"
)

// StrategySource is the subset of the Strategy Cache the detector reads.
type StrategySource interface {
	GetStrategies(venue, symbol string) []model.Strategy
}

// Tick is one normalized price observation from the ingress fan-out.
type Tick struct {
	Venue     string
	Symbol    string
	Price     float64
	Timestamp int64 // epoch ms
}

// Detector implements the OC match engine of spec.md §4.5: bucket
// resolution via the Open-Price Cache, threshold comparison, and
// per-(venue,symbol) noise suppression against the previously processed
// price.
type Detector struct {
	strategies StrategySource
	openPrices *cache.OpenPriceCache

	noiseThresholdPercent float64

	mu        sync.Mutex
	lastPrice map[string]float64 // per (venue,symbol)
}

func New(strategies StrategySource, openPrices *cache.OpenPriceCache, noiseThresholdPercent float64) *Detector {
	return &Detector{
		strategies:            strategies,
		openPrices:            openPrices,
		noiseThresholdPercent: noiseThresholdPercent,
		lastPrice:             make(map[string]float64),
	}
}

// Detect evaluates every active strategy candidate for (venue, symbol)
// against the tick, returning the MatchResult set (spec.md §4.5 algorithm)
// plus the computed EntryPlan per match (spec.md §4.7), so the Tick
// Consumer can hand matches straight to an Order Service.
func (d *Detector) Detect(ctx context.Context, t Tick) []Match {
	if t.Venue == "" || t.Symbol == "" || !isFinitePositive(t.Price) {
		return nil
	}

	sym := symbol.Normalize(t.Symbol)
	candidates := d.strategies.GetStrategies(t.Venue, sym)
	if len(candidates) == 0 {
		return nil
	}

	priceKey := t.Venue + "|" + sym
	if d.isNoise(priceKey, t.Price) {
		return nil
	}
	d.recordPrice(priceKey, t.Price)

	var matches []Match
	for _, st := range candidates {
		if !st.IsActive {
			continue
		}
		intervalMs, err := bucket.IntervalMs(st.Interval)
		if err != nil {
			continue
		}
		bucketStart := bucket.Start(intervalMs, t.Timestamp)

		entry, ok := d.openPrices.Resolve(ctx, t.Venue, sym, st.Interval, bucketStart, true, t.Price)
		if !ok {
			continue // order-path miss: skip per spec.md §4.3 tier 4 rule
		}
		if entry.Open <= 0 {
			continue
		}

		ocPercent := ((t.Price - entry.Open) / entry.Open) * 100
		if math.Abs(ocPercent) < st.OCThreshold {
			continue
		}

		direction := model.DirectionBullish
		if ocPercent < 0 {
			direction = model.DirectionBearish
		}

		mr := model.MatchResult{
			Strategy:     st,
			OCPercent:    ocPercent,
			Direction:    direction,
			CurrentPrice: t.Price,
			OpenPrice:    entry.Open,
			Interval:     st.Interval,
			Timestamp:    t.Timestamp,
		}

		side := SelectSide(direction, st.TradeType, st.IsReverseStrategy)
		if side == model.SideNone {
			logger.Infof("detector: skip strategy=%s %s %s: no side for direction=%s trade_type=%s reverse=%v",
				st.ID, t.Venue, sym, direction, st.TradeType, st.IsReverseStrategy)
			continue // no order, logged as skip (spec.md §8 S3)
		}
		plan := ComputeEntry(st, side, t.Price, entry.Open)

		matches = append(matches, Match{Result: mr, Plan: plan})
	}
	return matches
}

// Match pairs a raw OC match with its computed entry plan.
type Match struct {
	Result model.MatchResult
	Plan   EntryPlan
}

// isNoise reports whether the move since the previous processed price for
// this (venue,symbol) is below the noise threshold (spec.md §4.5).
func (d *Detector) isNoise(key string, price float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.lastPrice[key]
	if !ok || prev == 0 {
		return false
	}
	change := math.Abs((price-prev)/prev) * 100
	return change < d.noiseThresholdPercent
}

func (d *Detector) recordPrice(key string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPrice[key] = price
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

var _ StrategySource = (*cache.StrategyCache)(nil)
