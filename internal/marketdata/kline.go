// Package marketdata defines the kline-source contract (spec.md §6) and a
// WebSocket-backed rolling kline buffer, adapted from the teacher's
// market.Kline / WSMonitorCli.GetCurrentKlines pattern (market/data.go,
// market/types.go) generalized from a single-venue stock feed to a
// per-venue rolling window keyed by (symbol, interval).
package marketdata

import (
	"sync"

	"ocengine/internal/bucket"
)

// standardIntervals are the bucket lengths bucket.IntervalMs recognizes;
// Ingest folds every tick into each of these concurrently so a strategy
// configured on any one of them finds a live candle without this package
// needing to know which intervals are actually in use.
var standardIntervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d"}

// Kline is one OHLC bar, matching spec.md §6's
// (open_time, open, high, low, close, close_time) record shape and the
// teacher's market.Kline struct (market/types.go).
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	CloseTime int64
}

// KlineSource is what the Open-Price Cache reads from for tiers 1-2 of its
// resolution order (spec.md §4.3): the exchange-specific WS kline buffer.
type KlineSource interface {
	// GetKlineOpen returns the open of the candle whose start time exactly
	// equals bucketStart (tier 1: ws_bucket_open).
	GetKlineOpen(symbol, interval string, bucketStart int64) (float64, bool)
	// GetKlineClose returns the close of the candle whose start time
	// exactly equals bucketStart (used to resolve ws_prev_close).
	GetKlineClose(symbol, interval string, bucketStart int64) (float64, bool)
	// GetLatestCandle returns the most recently buffered candle for
	// (symbol, interval), regardless of its start time (tier 2:
	// ws_latest_candle_open, only used when its OpenTime == bucketStart).
	GetLatestCandle(symbol, interval string) (Kline, bool)
}

type bufferKey struct {
	Symbol   string
	Interval string
}

// KlineBuffer is a per-venue rolling window of completed and in-progress
// klines per subscribed (symbol, interval), fed by that venue's WS client.
// One buffer instance per venue.
type KlineBuffer struct {
	mu      sync.RWMutex
	window  int // number of candles retained per (symbol, interval)
	candles map[bufferKey][]Kline // ascending by OpenTime, bounded to window
}

func NewKlineBuffer(window int) *KlineBuffer {
	if window <= 0 {
		window = 50
	}
	return &KlineBuffer{window: window, candles: make(map[bufferKey][]Kline)}
}

// Upsert inserts or replaces the candle with the same OpenTime (the WS
// client delivers both in-progress updates and the final closed candle
// under the same open time), keeping the buffer sorted and bounded.
func (b *KlineBuffer) Upsert(symbol, interval string, k Kline) {
	key := bufferKey{Symbol: symbol, Interval: interval}

	b.mu.Lock()
	defer b.mu.Unlock()

	series := b.candles[key]
	for i := range series {
		if series[i].OpenTime == k.OpenTime {
			series[i] = k
			b.candles[key] = series
			return
		}
	}
	series = append(series, k)
	if len(series) > b.window {
		series = series[len(series)-b.window:]
	}
	b.candles[key] = series
}

// Ingest folds one price tick into the rolling candle of every standard
// interval bucket it falls into, opening a new candle on the bucket's first
// tick and updating high/low/close on every tick after. This is how the
// buffer is fed absent a dedicated kline WS stream: the same mark-price/
// ticker stream internal/ingress already runs is aggregated locally into
// OHLC bars (spec.md §6: "the same WebSocket client (preferred) ...
// maintains a rolling window").
func (b *KlineBuffer) Ingest(symbol string, price float64, timestampMs int64) {
	for _, interval := range standardIntervals {
		intervalMs, err := bucket.IntervalMs(interval)
		if err != nil {
			continue
		}
		bucketStart := bucket.Start(intervalMs, timestampMs)
		b.upsertTick(symbol, interval, bucketStart, intervalMs, price)
	}
}

func (b *KlineBuffer) upsertTick(symbol, interval string, bucketStart, intervalMs int64, price float64) {
	key := bufferKey{Symbol: symbol, Interval: interval}

	b.mu.Lock()
	defer b.mu.Unlock()

	series := b.candles[key]
	for i := range series {
		if series[i].OpenTime == bucketStart {
			if price > series[i].High {
				series[i].High = price
			}
			if price < series[i].Low {
				series[i].Low = price
			}
			series[i].Close = price
			b.candles[key] = series
			return
		}
	}
	series = append(series, Kline{
		OpenTime: bucketStart, Open: price, High: price, Low: price, Close: price,
		CloseTime: bucketStart + intervalMs - 1,
	})
	if len(series) > b.window {
		series = series[len(series)-b.window:]
	}
	b.candles[key] = series
}

func (b *KlineBuffer) GetKlineOpen(symbol, interval string, bucketStart int64) (float64, bool) {
	k, ok := b.find(symbol, interval, bucketStart)
	if !ok {
		return 0, false
	}
	return k.Open, true
}

func (b *KlineBuffer) GetKlineClose(symbol, interval string, bucketStart int64) (float64, bool) {
	k, ok := b.find(symbol, interval, bucketStart)
	if !ok {
		return 0, false
	}
	return k.Close, true
}

func (b *KlineBuffer) GetLatestCandle(symbol, interval string) (Kline, bool) {
	key := bufferKey{Symbol: symbol, Interval: interval}
	b.mu.RLock()
	defer b.mu.RUnlock()
	series := b.candles[key]
	if len(series) == 0 {
		return Kline{}, false
	}
	return series[len(series)-1], true
}

func (b *KlineBuffer) find(symbol, interval string, openTime int64) (Kline, bool) {
	key := bufferKey{Symbol: symbol, Interval: interval}
	b.mu.RLock()
	defer b.mu.RUnlock()
	series := b.candles[key]
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].OpenTime == openTime {
			return series[i], true
		}
		if series[i].OpenTime < openTime {
			break
		}
	}
	return Kline{}, false
}

var _ KlineSource = (*KlineBuffer)(nil)
