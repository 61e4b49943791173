package symbol

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"btc/usdt":   "BTCUSDT",
		"BTC_USDT":   "BTCUSDT",
		"btc:usdt":   "BTCUSDT",
		" eth usd ":  "ETHUSD",
		"solusdc":    "SOLUSDC",
		"doge":       "DOGEUSDT",
		"BTCUSDT":    "BTCUSDT",
		"":           "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"btc/usdt", "ETH_USD", "sol:usdc", "xrp"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}
