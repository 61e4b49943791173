package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"ocengine/internal/cache"
	"ocengine/internal/marketdata"
	"ocengine/internal/model"
)

type fakeWatcherSource struct {
	watchers []model.AlertWatcher
}

func (f *fakeWatcherSource) ListAlertWatchers() ([]model.AlertWatcher, error) {
	return f.watchers, nil
}

type fakeKlineSource struct{ open float64 }

func (f *fakeKlineSource) GetKlineOpen(symbol, interval string, bucketStart int64) (float64, bool) {
	return f.open, true
}
func (f *fakeKlineSource) GetKlineClose(symbol, interval string, bucketStart int64) (float64, bool) {
	return f.open, true
}
func (f *fakeKlineSource) GetLatestCandle(symbol, interval string) (marketdata.Kline, bool) {
	return marketdata.Kline{}, false
}

var _ marketdata.KlineSource = (*fakeKlineSource)(nil)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Enqueue(purpose string, chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestWatcher(t *testing.T, open float64, watchers []model.AlertWatcher, rearm float64) *Watcher {
	oc := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{Size: 100, TTL: time.Minute, MemoWindow: time.Millisecond})
	oc.RegisterVenue("binance", &fakeKlineSource{open: open}, nil)
	src := &fakeWatcherSource{watchers: watchers}
	notifier := &fakeNotifier{}
	w := New(src, oc, notifier, rearm)
	if err := w.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return w
}

func oneWatcher(threshold float64) []model.AlertWatcher {
	return []model.AlertWatcher{{
		ConfigID: "c1", Venue: "binance",
		Symbols:   map[string]struct{}{"BTCUSDT": {}},
		Intervals: map[string]struct{}{"1m": {}},
		ThresholdPercent: threshold, ChatID: 555,
	}}
}

func TestEvaluateFiresAlertAboveThreshold(t *testing.T) {
	w := newTestWatcher(t, 100, oneWatcher(1.0), 0.6)
	notifier := w.notifier.(*fakeNotifier)

	w.Evaluate(context.Background(), "binance", "BTCUSDT", 102, 0)
	if notifier.count() != 1 {
		t.Fatalf("alerts fired = %d, want 1", notifier.count())
	}
}

func TestEvaluateSuppressesRepeatWhileArmedFalse(t *testing.T) {
	w := newTestWatcher(t, 100, oneWatcher(1.0), 0.6)
	notifier := w.notifier.(*fakeNotifier)

	w.Evaluate(context.Background(), "binance", "BTCUSDT", 102, 0)
	w.Evaluate(context.Background(), "binance", "BTCUSDT", 102.5, 0)
	if notifier.count() != 1 {
		t.Fatalf("alerts fired = %d, want 1 (second crossing should be suppressed)", notifier.count())
	}
}

func TestEvaluateRearmsBelowRatioThenFiresAgain(t *testing.T) {
	w := newTestWatcher(t, 100, oneWatcher(1.0), 0.6) // rearm below 0.6%

	notifier := w.notifier.(*fakeNotifier)
	w.Evaluate(context.Background(), "binance", "BTCUSDT", 102, 0) // oc=2% -> fires, disarms
	if notifier.count() != 1 {
		t.Fatalf("initial fire count = %d, want 1", notifier.count())
	}

	w.Evaluate(context.Background(), "binance", "BTCUSDT", 100.5, 0) // oc=0.5% < 0.6 -> rearms
	if notifier.count() != 1 {
		t.Fatalf("rearm tick should not itself fire: count = %d", notifier.count())
	}

	w.Evaluate(context.Background(), "binance", "BTCUSDT", 102, 0) // crosses again -> fires
	if notifier.count() != 2 {
		t.Fatalf("alerts fired = %d, want 2 after rearm", notifier.count())
	}
}

func TestEvaluateIgnoresUnwatchedSymbol(t *testing.T) {
	w := newTestWatcher(t, 100, oneWatcher(1.0), 0.6)
	notifier := w.notifier.(*fakeNotifier)

	w.Evaluate(context.Background(), "binance", "ETHUSDT", 200, 0)
	if notifier.count() != 0 {
		t.Fatalf("alerts fired = %d, want 0 for unwatched symbol", notifier.count())
	}
}
