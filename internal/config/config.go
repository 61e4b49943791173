// Package config loads the engine's flat key-value tunables into a typed
// struct. Every interval, threshold, batch size and pacing value named in
// the specification is a named field here with a compiled-in default and an
// env var override — no untyped global getters.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the engine's runtime configuration, read once at startup.
type Config struct {
	LogLevel  string
	LogFormat string

	// Tick Consumer (spec §4.4)
	MinTickIntervalMs int
	BatchSize         int
	BatchTimeoutMs    int
	TickConcurrency   int
	TickQueueCapacity int

	// OC Detector (spec §4.5)
	NoiseThresholdPercent float64

	// Open-Price Cache (spec §4.3)
	OpenPriceCacheSize      int
	OpenPriceCacheTTL       time.Duration
	OpenPriceSweepInterval  time.Duration
	OpenPriceMemoWindow     time.Duration
	RESTKlineFallbackEnabled bool
	RESTKlineCircuitWindow   time.Duration
	RESTKlineMaxInFlight     int
	RESTKlineQueueCapacity   int
	OpenPrimeToleranceMs     int
	MaxPrevCloseGapBuckets   int
	StrictPrevCloseGap       bool

	// Strategy Cache / Symbol-Filter Cache (spec §4.1, §4.2)
	StrategyCacheRefreshInterval time.Duration
	SymbolFilterCacheRefresh     time.Duration

	// Extend admission (spec §4.7)
	MaxExtendDiffRatio        float64
	PassiveLimitOnExtendMiss bool

	// Order Service (spec §4.8)
	OpenPositionCacheTTL    time.Duration
	FailureCooldown         time.Duration
	TPSLPlacementDelay      time.Duration
	RetryBackoffBase        time.Duration
	RetryMaxAttempts        int

	// Telegram Dispatcher (spec §4.9)
	TelegramMinGapGlobalMs  int
	TelegramPerChatMinGapMs int
	TelegramQueueMaxIdle    time.Duration
	TelegramChatMaxIdle     time.Duration

	// Alerts (spec §3 AlertState)
	AlertRearmRatio float64

	// Exchange REST conventions (spec §6)
	RESTRecvWindowMs   int
	RESTMinIntervalMs  int
	RESTTimeout        time.Duration
	TelegramTimeout    time.Duration

	// Shutdown (spec §5)
	ShutdownDrainDeadline time.Duration
	RefreshWatchdog       time.Duration

	// Store
	SQLiteDSN string

	// API
	APIAddr   string
	JWTSecret string
	TOTPSecret string

	// Telegram Dispatcher credentials
	TelegramBotToken string

	// Venue credentials, one set per supported exchange (spec.md §6)
	BinanceAPIKey    string
	BinanceAPISecret string

	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool

	HyperliquidPrivateKey string
	HyperliquidWallet     string
	HyperliquidTestnet    bool

	LighterWalletAddr       string
	LighterAPIKeyPrivateKey string
	LighterAPIKeyIndex      int
}

// Load builds a Config from the process environment, loading a .env file
// first if present (development convenience; production deploys set real
// env vars and the godotenv.Load error is ignored).
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		LogLevel:  getStr("LOG_LEVEL", "info"),
		LogFormat: getStr("LOG_FORMAT", "json"),

		MinTickIntervalMs: getInt("MIN_TICK_INTERVAL_MS", 75),
		BatchSize:         getInt("BATCH_SIZE", 200),
		BatchTimeoutMs:    getInt("BATCH_TIMEOUT_MS", 50),
		TickConcurrency:   getInt("TICK_CONCURRENCY", 8),
		TickQueueCapacity: getInt("TICK_QUEUE_CAPACITY", 20000),

		NoiseThresholdPercent: getFloat("NOISE_THRESHOLD_PERCENT", 0.01),

		OpenPriceCacheSize:       getInt("OPEN_PRICE_CACHE_SIZE", 1000),
		OpenPriceCacheTTL:        getDuration("OPEN_PRICE_CACHE_TTL", 15*time.Minute),
		OpenPriceSweepInterval:   getDuration("OPEN_PRICE_SWEEP_INTERVAL", time.Minute),
		OpenPriceMemoWindow:      getDuration("OPEN_PRICE_MEMO_WINDOW", time.Second),
		RESTKlineFallbackEnabled: getBool("REST_KLINE_FALLBACK_ENABLED", false),
		RESTKlineCircuitWindow:   getDuration("REST_KLINE_CIRCUIT_WINDOW", 30*time.Second),
		RESTKlineMaxInFlight:     getInt("REST_KLINE_MAX_INFLIGHT", 4),
		RESTKlineQueueCapacity:   getInt("REST_KLINE_QUEUE_CAPACITY", 256),
		OpenPrimeToleranceMs:     getInt("OPEN_PRIME_TOLERANCE_MS", 2000),
		MaxPrevCloseGapBuckets:   getInt("MAX_PREV_CLOSE_GAP_BUCKETS", 1),
		StrictPrevCloseGap:       getBool("STRICT_PREV_CLOSE_GAP", true),

		StrategyCacheRefreshInterval: getDuration("STRATEGY_CACHE_REFRESH_INTERVAL", 60*time.Second),
		SymbolFilterCacheRefresh:     getDuration("SYMBOL_FILTER_CACHE_REFRESH", 5*time.Minute),

		MaxExtendDiffRatio:       getFloat("MAX_EXTEND_DIFF_RATIO", 0.5),
		PassiveLimitOnExtendMiss: getBool("PASSIVE_LIMIT_ON_EXTEND_MISS", true),

		OpenPositionCacheTTL: getDuration("OPEN_POSITION_CACHE_TTL", 5*time.Second),
		FailureCooldown:      getDuration("FAILURE_COOLDOWN", 60*time.Second),
		TPSLPlacementDelay:   getDuration("TP_SL_PLACEMENT_DELAY", time.Second),
		RetryBackoffBase:     getDuration("RETRY_BACKOFF_BASE", time.Second),
		RetryMaxAttempts:     getInt("RETRY_MAX_ATTEMPTS", 3),

		TelegramMinGapGlobalMs:  getInt("TELEGRAM_MIN_GAP_GLOBAL_MS", 1000),
		TelegramPerChatMinGapMs: getInt("TELEGRAM_PER_CHAT_MIN_GAP_MS", 3000),
		TelegramQueueMaxIdle:    getDuration("TELEGRAM_QUEUE_MAX_IDLE", 30*time.Minute),
		TelegramChatMaxIdle:     getDuration("TELEGRAM_CHAT_MAX_IDLE", 6*time.Hour),

		AlertRearmRatio: getFloat("ALERT_REARM_RATIO", 0.6),

		RESTRecvWindowMs:  getInt("REST_RECV_WINDOW_MS", 10000),
		RESTMinIntervalMs: getInt("REST_MIN_INTERVAL_MS", 100),
		RESTTimeout:       getDuration("REST_TIMEOUT", 15*time.Second),
		TelegramTimeout:   getDuration("TELEGRAM_TIMEOUT", 10*time.Second),

		ShutdownDrainDeadline: getDuration("SHUTDOWN_DRAIN_DEADLINE", 10*time.Second),
		RefreshWatchdog:       getDuration("REFRESH_WATCHDOG", 5*time.Minute),

		SQLiteDSN: getStr("SQLITE_DSN", "file:ocengine.db?_pragma=journal_mode(WAL)"),

		APIAddr:    getStr("API_ADDR", ":8090"),
		JWTSecret:  getStr("JWT_SECRET", ""),
		TOTPSecret: getStr("TOTP_SECRET", ""),

		TelegramBotToken: getStr("TELEGRAM_BOT_TOKEN", ""),

		BinanceAPIKey:    getStr("BINANCE_API_KEY", ""),
		BinanceAPISecret: getStr("BINANCE_API_SECRET", ""),

		BybitAPIKey:    getStr("BYBIT_API_KEY", ""),
		BybitAPISecret: getStr("BYBIT_API_SECRET", ""),
		BybitTestnet:   getBool("BYBIT_TESTNET", false),

		HyperliquidPrivateKey: getStr("HYPERLIQUID_PRIVATE_KEY", ""),
		HyperliquidWallet:     getStr("HYPERLIQUID_WALLET", ""),
		HyperliquidTestnet:    getBool("HYPERLIQUID_TESTNET", false),

		LighterWalletAddr:       getStr("LIGHTER_WALLET_ADDR", ""),
		LighterAPIKeyPrivateKey: getStr("LIGHTER_API_KEY_PRIVATE_KEY", ""),
		LighterAPIKeyIndex:      getInt("LIGHTER_API_KEY_INDEX", 0),
	}
	return c
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
