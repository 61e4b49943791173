package bucket

import "testing"

func TestIntervalMs(t *testing.T) {
	cases := map[string]int64{
		"1m": 60_000, "3m": 180_000, "5m": 300_000, "15m": 900_000,
		"30m": 1_800_000, "1h": 3_600_000, "4h": 14_400_000, "1d": 86_400_000,
		"1H": 3_600_000, " 1m ": 60_000,
	}
	for in, want := range cases {
		got, err := IntervalMs(in)
		if err != nil {
			t.Fatalf("IntervalMs(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("IntervalMs(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestIntervalMsUnknown(t *testing.T) {
	if _, err := IntervalMs("2m"); err == nil {
		t.Fatal("expected error for unknown interval")
	}
}

func TestStart(t *testing.T) {
	intervalMs := int64(60_000)
	cases := []struct {
		ts   int64
		want int64
	}{
		{0, 0},
		{59_999, 0},
		{60_000, 60_000},
		{119_999, 60_000},
		{120_000, 120_000},
	}
	for _, c := range cases {
		if got := Start(intervalMs, c.ts); got != c.want {
			t.Errorf("Start(%d, %d) = %d, want %d", intervalMs, c.ts, got, c.want)
		}
	}
}

func TestStartNonPositiveInterval(t *testing.T) {
	if got := Start(0, 12345); got != 0 {
		t.Errorf("Start with zero interval = %d, want 0", got)
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Venue: "binance", Symbol: "BTCUSDT", Interval: "1m", BucketStart: 60_000}
	want := "binance:BTCUSDT:1m:60000"
	if got := k.String(); got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}
}
