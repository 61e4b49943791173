package detector

import (
	"context"
	"testing"
	"time"

	"ocengine/internal/cache"
	"ocengine/internal/marketdata"
	"ocengine/internal/model"
)

type fakeStrategySource struct {
	byKey map[string][]model.Strategy
}

func (f *fakeStrategySource) GetStrategies(venue, symbol string) []model.Strategy {
	return f.byKey[venue+"|"+symbol]
}

type fakeKlineSource struct {
	open float64
}

func (f *fakeKlineSource) GetKlineOpen(symbol, interval string, bucketStart int64) (float64, bool) {
	return f.open, true
}
func (f *fakeKlineSource) GetKlineClose(symbol, interval string, bucketStart int64) (float64, bool) {
	return 0, false
}
func (f *fakeKlineSource) GetLatestCandle(symbol, interval string) (marketdata.Kline, bool) {
	return marketdata.Kline{}, false
}

var _ marketdata.KlineSource = (*fakeKlineSource)(nil)

func newTestOpenPriceCache(open float64) *cache.OpenPriceCache {
	opc := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{
		Size: 100, TTL: time.Minute, MemoWindow: time.Second,
	})
	opc.RegisterVenue("binance", &fakeKlineSource{open: open}, nil)
	return opc
}

func TestDetectMatchCounterTrendLong(t *testing.T) {
	strategies := &fakeStrategySource{byKey: map[string][]model.Strategy{
		"binance|BTCUSDT": {{
			ID: "s1", Venue: "binance", Symbol: "BTCUSDT", Interval: "1m",
			OCThreshold: 3, TradeType: model.TradeLong, IsReverseStrategy: true,
			Extend: 50, TakeProfit: 55, StopLoss: 20, IsActive: true,
		}},
	}}
	opc := newTestOpenPriceCache(0.07811)
	d := New(strategies, opc, 0.01)

	matches := d.Detect(context.Background(), Tick{
		Venue: "binance", Symbol: "btc/usdt", Price: 0.07500, Timestamp: 60_000,
	})

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.Result.Direction != model.DirectionBearish {
		t.Errorf("direction = %v, want bearish", m.Result.Direction)
	}
	if m.Plan.Side != model.SideLong {
		t.Errorf("side = %v, want long", m.Plan.Side)
	}
	if !approxEqual(m.Plan.Entry, 0.073445, 1e-6) {
		t.Errorf("entry = %v, want ~0.073445", m.Plan.Entry)
	}
}

func TestDetectSkipsBelowThreshold(t *testing.T) {
	strategies := &fakeStrategySource{byKey: map[string][]model.Strategy{
		"binance|BTCUSDT": {{
			Venue: "binance", Symbol: "BTCUSDT", Interval: "1m",
			OCThreshold: 10, TradeType: model.TradeBoth, IsActive: true,
		}},
	}}
	opc := newTestOpenPriceCache(100)
	d := New(strategies, opc, 0.01)

	matches := d.Detect(context.Background(), Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 101, Timestamp: 0})
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0 (1%% move under 10%% threshold)", len(matches))
	}
}

func TestDetectSideNoneProducesNoMatch(t *testing.T) {
	// S3: trade_type=long with a bearish move and is_reverse=false selects
	// no side, so no match/order is emitted even though OC crossed threshold.
	strategies := &fakeStrategySource{byKey: map[string][]model.Strategy{
		"binance|BTCUSDT": {{
			Venue: "binance", Symbol: "BTCUSDT", Interval: "1m",
			OCThreshold: 3, TradeType: model.TradeLong, IsReverseStrategy: false, IsActive: true,
		}},
	}}
	opc := newTestOpenPriceCache(100)
	d := New(strategies, opc, 0.01)

	matches := d.Detect(context.Background(), Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 95, Timestamp: 0})
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0 (side selection should skip)", len(matches))
	}
}

func TestDetectInvalidInputsProduceNoMatches(t *testing.T) {
	strategies := &fakeStrategySource{byKey: map[string][]model.Strategy{}}
	opc := newTestOpenPriceCache(100)
	d := New(strategies, opc, 0.01)

	cases := []Tick{
		{Venue: "", Symbol: "BTCUSDT", Price: 100, Timestamp: 0},
		{Venue: "binance", Symbol: "", Price: 100, Timestamp: 0},
		{Venue: "binance", Symbol: "BTCUSDT", Price: 0, Timestamp: 0},
		{Venue: "binance", Symbol: "BTCUSDT", Price: -5, Timestamp: 0},
	}
	for _, c := range cases {
		if got := d.Detect(context.Background(), c); len(got) != 0 {
			t.Errorf("Detect(%+v) = %d matches, want 0", c, len(got))
		}
	}
}

func TestDetectNoiseThresholdSuppressesReevaluation(t *testing.T) {
	strategies := &fakeStrategySource{byKey: map[string][]model.Strategy{
		"binance|BTCUSDT": {{
			Venue: "binance", Symbol: "BTCUSDT", Interval: "1m",
			OCThreshold: 1, TradeType: model.TradeBoth, IsActive: true,
		}},
	}}
	opc := newTestOpenPriceCache(100)
	d := New(strategies, opc, 5) // 5% noise threshold

	first := d.Detect(context.Background(), Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 102, Timestamp: 0})
	if len(first) != 1 {
		t.Fatalf("first tick: got %d matches, want 1", len(first))
	}

	// Second tick moves only 0.5% from the last processed price (102->102.5),
	// well under the 5% noise threshold: must be suppressed entirely.
	second := d.Detect(context.Background(), Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 102.5, Timestamp: 1000})
	if len(second) != 0 {
		t.Fatalf("second tick: got %d matches, want 0 (noise suppressed)", len(second))
	}
}
