// Package bucket derives OC time-buckets: the interval-aligned window a
// strategy's percentage-change threshold is evaluated against.
package bucket

import (
	"fmt"
	"strings"
)

// IntervalMs maps a strategy interval string ("1m", "5m", "15m", ...) to its
// bucket length in milliseconds. Unknown intervals return an error so a
// malformed strategy config fails fast instead of silently using a bogus
// bucket length.
func IntervalMs(interval string) (int64, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	switch interval {
	case "1m":
		return 60_000, nil
	case "3m":
		return 3 * 60_000, nil
	case "5m":
		return 5 * 60_000, nil
	case "15m":
		return 15 * 60_000, nil
	case "30m":
		return 30 * 60_000, nil
	case "1h":
		return 3_600_000, nil
	case "4h":
		return 4 * 3_600_000, nil
	case "1d":
		return 24 * 3_600_000, nil
	default:
		return 0, fmt.Errorf("bucket: unknown interval %q", interval)
	}
}

// Start returns bucket_start = floor(timestampMs / intervalMs) * intervalMs.
// All components deriving buckets from the same (interval, timestamp) must
// use this function so bucket_start is universally identical (spec
// invariant 1).
func Start(intervalMs, timestampMs int64) int64 {
	if intervalMs <= 0 {
		return 0
	}
	return (timestampMs / intervalMs) * intervalMs
}

// Key identifies one (venue, symbol, interval, bucket_start) cache entry.
type Key struct {
	Venue      string
	Symbol     string
	Interval   string
	BucketStart int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%d", k.Venue, k.Symbol, k.Interval, k.BucketStart)
}
