package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ocengine/internal/alerts"
	"ocengine/internal/cache"
	"ocengine/internal/consumer"
	"ocengine/internal/detector"
	"ocengine/internal/marketdata"
	"ocengine/internal/metrics"
	"ocengine/internal/model"
	"ocengine/internal/orderservice"
)

type fakeStrategySource struct{}

func (fakeStrategySource) GetStrategies(venue, symbol string) []model.Strategy { return nil }

type fakeWatcherSource struct{ watchers []model.AlertWatcher }

func (f fakeWatcherSource) ListAlertWatchers() ([]model.AlertWatcher, error) { return f.watchers, nil }

// TestTickFanoutFeedsAllThreeBranches drives cmd/engine's ingress fan-out
// point (spec.md §2's "parallel branch from Ingress") with all three
// branches wired: Tick Consumer, the venue's kline buffer, and the alert
// watcher. It asserts the first two; the watcher is called but, under its
// threshold, sends nothing, so no assertion covers it.
func TestTickFanoutFeedsAllThreeBranches(t *testing.T) {
	openPrices := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{Size: 10, TTL: time.Minute, MemoWindow: time.Second})
	buf := marketdata.NewKlineBuffer(50)
	openPrices.RegisterVenue("binance", buf, nil)

	det := detector.New(fakeStrategySource{}, openPrices, 0.01)
	router := orderservice.NewRouter()
	cons := consumer.New(consumer.Config{BatchSize: 10, BatchTimeout: time.Second, TickConcurrency: 1}, det, router)

	watcher := alerts.New(fakeWatcherSource{watchers: []model.AlertWatcher{{
		ConfigID: "w1", Venue: "binance", ChatID: 1,
		Symbols:          map[string]struct{}{"BTCUSDT": {}},
		Intervals:        map[string]struct{}{"1m": {}},
		ThresholdPercent: 50, // high enough that this tick alone never fires a notification
	}}}, openPrices, nil, 0.6)
	if err := watcher.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fanout := &tickFanout{consumer: cons, klineBuffers: map[string]*marketdata.KlineBuffer{"binance": buf}, alerts: watcher}

	before := testutil.ToFloat64(metrics.TicksReceivedTotal.WithLabelValues("binance"))
	fanout.Push(detector.Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 100, Timestamp: 0})
	after := testutil.ToFloat64(metrics.TicksReceivedTotal.WithLabelValues("binance"))

	if after != before+1 {
		t.Errorf("ticks_received_total{venue=binance} = %v, want %v (fanout must forward to the Tick Consumer)", after, before+1)
	}
	if open, ok := buf.GetKlineOpen("BTCUSDT", "1m", 0); !ok || open != 100 {
		t.Errorf("kline buffer open = (%v, %v), want (100, true) (fanout must aggregate into the kline buffer)", open, ok)
	}
}

func TestTickFanoutSkipsNilAlertsWatcher(t *testing.T) {
	openPrices := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{Size: 10, TTL: time.Minute, MemoWindow: time.Second})
	buf := marketdata.NewKlineBuffer(50)
	det := detector.New(fakeStrategySource{}, openPrices, 0.01)
	cons := consumer.New(consumer.Config{BatchSize: 10, BatchTimeout: time.Second, TickConcurrency: 1}, det, orderservice.NewRouter())

	fanout := &tickFanout{consumer: cons, klineBuffers: map[string]*marketdata.KlineBuffer{"binance": buf}, alerts: nil}

	// Must not panic with no alert watcher wired (e.g. Telegram disabled).
	fanout.Push(detector.Tick{Venue: "binance", Symbol: "BTCUSDT", Price: 100, Timestamp: 0})

	if open, ok := buf.GetKlineOpen("BTCUSDT", "1m", 0); !ok || open != 100 {
		t.Errorf("kline buffer open = (%v, %v), want (100, true)", open, ok)
	}
}
