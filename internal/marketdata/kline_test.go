package marketdata

import "testing"

func TestIngestOpensNewCandleOnFirstTickInBucket(t *testing.T) {
	buf := NewKlineBuffer(50)
	buf.Ingest("BTCUSDT", 100, 0)

	open, ok := buf.GetKlineOpen("BTCUSDT", "1m", 0)
	if !ok || open != 100 {
		t.Fatalf("GetKlineOpen = (%v, %v), want (100, true)", open, ok)
	}
	k, ok := buf.GetLatestCandle("BTCUSDT", "1m")
	if !ok || k.High != 100 || k.Low != 100 || k.Close != 100 {
		t.Fatalf("GetLatestCandle = %+v, want OHLC all 100", k)
	}
}

func TestIngestUpdatesHighLowCloseWithinSameBucket(t *testing.T) {
	buf := NewKlineBuffer(50)
	buf.Ingest("BTCUSDT", 100, 0)
	buf.Ingest("BTCUSDT", 105, 10_000)
	buf.Ingest("BTCUSDT", 95, 20_000)
	buf.Ingest("BTCUSDT", 102, 30_000) // all within the same 1m bucket [0, 60000)

	k, ok := buf.GetLatestCandle("BTCUSDT", "1m")
	if !ok {
		t.Fatal("expected a candle")
	}
	if k.Open != 100 {
		t.Errorf("Open = %v, want 100 (first tick in bucket)", k.Open)
	}
	if k.High != 105 {
		t.Errorf("High = %v, want 105", k.High)
	}
	if k.Low != 95 {
		t.Errorf("Low = %v, want 95", k.Low)
	}
	if k.Close != 102 {
		t.Errorf("Close = %v, want 102 (last tick)", k.Close)
	}
}

func TestIngestOpensSeparateCandleInNextBucket(t *testing.T) {
	buf := NewKlineBuffer(50)
	buf.Ingest("BTCUSDT", 100, 0)
	buf.Ingest("BTCUSDT", 110, 61_000) // next 1m bucket

	open0, ok := buf.GetKlineOpen("BTCUSDT", "1m", 0)
	if !ok || open0 != 100 {
		t.Fatalf("bucket 0 open = (%v, %v), want (100, true)", open0, ok)
	}
	open1, ok := buf.GetKlineOpen("BTCUSDT", "1m", 60_000)
	if !ok || open1 != 110 {
		t.Fatalf("bucket 60000 open = (%v, %v), want (110, true)", open1, ok)
	}
}

func TestIngestBoundsWindowPerInterval(t *testing.T) {
	buf := NewKlineBuffer(2)
	for i := int64(0); i < 5; i++ {
		buf.Ingest("BTCUSDT", float64(100+i), i*60_000)
	}
	// Only the last 2 buckets of the 1m series should survive.
	if _, ok := buf.GetKlineOpen("BTCUSDT", "1m", 0); ok {
		t.Error("expected oldest 1m bucket to be evicted once window is exceeded")
	}
	if _, ok := buf.GetKlineOpen("BTCUSDT", "1m", 4*60_000); !ok {
		t.Error("expected the most recent 1m bucket to still be present")
	}
}

func TestUpsertReplacesCandleWithSameOpenTime(t *testing.T) {
	buf := NewKlineBuffer(50)
	buf.Upsert("BTCUSDT", "1m", Kline{OpenTime: 0, Open: 100, High: 100, Low: 100, Close: 100})
	buf.Upsert("BTCUSDT", "1m", Kline{OpenTime: 0, Open: 100, High: 120, Low: 90, Close: 110})

	k, ok := buf.GetLatestCandle("BTCUSDT", "1m")
	if !ok || k.Close != 110 || k.High != 120 {
		t.Fatalf("GetLatestCandle = %+v, want the replaced candle", k)
	}
}
