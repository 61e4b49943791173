// Package metrics exposes the engine's Prometheus registry. Adapted from
// the teacher's metrics/metrics.go (promauto-registered GaugeVec/CounterVec
// families under a fixed namespace); the teacher's per-trader P&L gauges
// become per-bot/per-venue hot-path counters for ticks, matches, orders and
// cache behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Registry = prometheus.NewRegistry()

var (
	TicksReceivedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "ingress", Name: "ticks_received_total",
			Help: "Ticks received from venue WebSocket ingress.",
		},
		[]string{"venue"},
	)

	TicksDroppedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "consumer", Name: "ticks_dropped_total",
			Help: "Ticks dropped by throttle or backpressure.",
		},
		[]string{"venue", "reason"},
	)

	BatchSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ocengine", Subsystem: "consumer", Name: "batch_size",
			Help:    "Size of tick batches dispatched to the detector.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	MatchesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "detector", Name: "matches_total",
			Help: "Strategy matches produced by the OC detector.",
		},
		[]string{"venue", "direction"},
	)

	OpenPriceSourceTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "openprice", Name: "resolutions_total",
			Help: "Open-price resolutions by provenance source.",
		},
		[]string{"source"},
	)

	CacheSize = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ocengine", Subsystem: "cache", Name: "size",
			Help: "Current entry count of an in-memory cache.",
		},
		[]string{"cache"},
	)

	CacheEvictionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "cache", Name: "evictions_total",
			Help: "Cache evictions by reason (lru, ttl).",
		},
		[]string{"cache", "reason"},
	)

	OrdersTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocengine", Subsystem: "orderservice", Name: "orders_total",
			Help: "Order submissions by bot and outcome.",
		},
		// outcome: submitted, skipped_open_position, skipped_cooldown,
		// skipped_plan, skipped_max_concurrent, fatal_no_filter,
		// transient_retry, extend_admission_cancelled, or the errs.Kind name
		// of a final submission failure.
		[]string{"bot_id", "outcome"},
	)

	OpenPositionsGauge = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ocengine", Subsystem: "orderservice", Name: "open_positions",
			Help: "Currently open positions per bot.",
		},
		[]string{"bot_id"},
	)

	TelegramQueueDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ocengine", Subsystem: "telegram", Name: "queue_depth",
			Help: "Pending items per Telegram client queue.",
		},
		[]string{"client"},
	)

	TelegramBackoffUntil = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ocengine", Subsystem: "telegram", Name: "backoff_until_unixms",
			Help: "Unix-ms timestamp until which a client's queue is backed off (0 if none).",
		},
		[]string{"client"},
	)
)
