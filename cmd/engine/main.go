// Command engine is the OC Signal-to-Order Engine's entrypoint: it loads
// config, opens the store, wires the three caches, ingress clients,
// detector, consumer, per-bot order services, the Telegram dispatcher, the
// alert watcher and the debug/operator API, then runs until signalled.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ocengine/internal/alerts"
	"ocengine/internal/api"
	"ocengine/internal/cache"
	"ocengine/internal/config"
	"ocengine/internal/consumer"
	"ocengine/internal/detector"
	"ocengine/internal/ingress"
	"ocengine/internal/logger"
	"ocengine/internal/marketdata"
	"ocengine/internal/model"
	"ocengine/internal/orderservice"
	"ocengine/internal/store"
	"ocengine/internal/telegram"
	"ocengine/internal/venue"
	"ocengine/internal/venue/binance"
	"ocengine/internal/venue/bybit"
	"ocengine/internal/venue/hyperliquid"
	"ocengine/internal/venue/lighter"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Errorf("engine: open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	exchanges := buildExchanges(cfg)

	symbolFilters := cache.NewSymbolFilterCache()
	strategies := cache.NewStrategyCache(st, cfg.StrategyCacheRefreshInterval)
	openPrices := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{
		Size:                 cfg.OpenPriceCacheSize,
		TTL:                  cfg.OpenPriceCacheTTL,
		MemoWindow:           cfg.OpenPriceMemoWindow,
		RESTEnabled:          cfg.RESTKlineFallbackEnabled,
		OpenPrimeToleranceMs: cfg.OpenPrimeToleranceMs,
		MaxPrevCloseGapBkts:  cfg.MaxPrevCloseGapBuckets,
		StrictPrevCloseGap:   cfg.StrictPrevCloseGap,
	})
	klineBuffers := registerKlineSources(openPrices, cfg, exchanges)

	stopCh := make(chan struct{})
	go strategies.Run(stopCh)
	go openPrices.Run(stopCh, cfg.OpenPriceSweepInterval)

	exchangeInfoSources := make([]cache.ExchangeInfoSource, 0, len(exchanges))
	for _, ex := range exchanges {
		exchangeInfoSources = append(exchangeInfoSources, ex)
	}
	filterJob := cache.NewSymbolFilterJob(symbolFilters, st, cfg.SymbolFilterCacheRefresh, exchangeInfoSources...)
	go filterJob.Run(ctx, stopCh)

	var tg *telegram.Dispatcher
	if cfg.TelegramBotToken != "" {
		tg, err = telegram.NewFromToken(cfg.TelegramBotToken, telegram.Config{
			MinGapGlobal: time.Duration(cfg.TelegramMinGapGlobalMs) * time.Millisecond,
			PerChatGap:   time.Duration(cfg.TelegramPerChatMinGapMs) * time.Millisecond,
			QueueMaxIdle: cfg.TelegramQueueMaxIdle,
			ChatMaxIdle:  cfg.TelegramChatMaxIdle,
			SendTimeout:  cfg.TelegramTimeout,
		})
		if err != nil {
			logger.Errorf("engine: telegram dispatcher init: %v", err)
			os.Exit(1)
		}
		go tg.Run(ctx)
	} else {
		logger.Warnf("engine: TELEGRAM_BOT_TOKEN unset, order/alert notifications are disabled")
	}

	det := detector.New(strategies, openPrices, cfg.NoiseThresholdPercent)
	router := orderservice.NewRouter()

	bots, err := st.ListActiveBots()
	if err != nil {
		logger.Errorf("engine: list active bots: %v", err)
		os.Exit(1)
	}
	for _, bot := range bots {
		ex, ok := exchanges[bot.Venue]
		if !ok {
			logger.Warnf("engine: bot %s references unknown venue %q, skipped", bot.ID, bot.Venue)
			continue
		}
		svc := orderservice.New(bot, ex, symbolFilters, st, notifierOrNil(tg), orderservice.Config{
			OpenPositionTTL: cfg.OpenPositionCacheTTL,
			FailureCooldown: cfg.FailureCooldown,
			TPSLDelay:       cfg.TPSLPlacementDelay,
			MaxRetries:      cfg.RetryMaxAttempts,
			RetryBaseDelay:  cfg.RetryBackoffBase,
			MaxExtendDiff:   cfg.MaxExtendDiffRatio,
		})
		router.Register(bot.ID, svc)
		logger.Infof("engine: wired order service for bot=%s venue=%s", bot.ID, bot.Venue)
	}

	cons := consumer.New(consumer.Config{
		MinTickIntervalMs: int64(cfg.MinTickIntervalMs),
		BatchSize:         cfg.BatchSize,
		BatchTimeout:      time.Duration(cfg.BatchTimeoutMs) * time.Millisecond,
		TickConcurrency:   cfg.TickConcurrency,
		QueueCapacity:     cfg.TickQueueCapacity,
	}, det, router)
	go cons.Run(ctx)

	var notifierForAlerts alerts.Notifier
	if tg != nil {
		notifierForAlerts = tg
	}
	watcher := alerts.New(st, openPrices, notifierForAlerts, cfg.AlertRearmRatio)
	if err := watcher.Refresh(); err != nil {
		logger.Warnf("engine: initial alert watcher refresh failed: %v", err)
	}
	go watcher.Run(stopCh, cfg.StrategyCacheRefreshInterval)

	activeStrategies, err := st.ListActiveStrategies()
	if err != nil {
		logger.Errorf("engine: list active strategies: %v", err)
		os.Exit(1)
	}

	fanout := &tickFanout{consumer: cons, klineBuffers: klineBuffers, alerts: watcher}

	readiness := make([]api.ReadinessSource, 0, len(exchanges))
	ingressClients := wireIngress(fanout, activeStrategies)
	for _, c := range ingressClients {
		go c.Run(ctx)
		readiness = append(readiness, c)
	}

	srv := api.New(symbolFilters, strategies, openPrices, cfg.JWTSecret, cfg.TOTPSecret, readiness...)
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: srv.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("engine: api server: %v", err)
		}
	}()
	logger.Infof("engine: debug/operator API listening on %s", cfg.APIAddr)

	<-ctx.Done()
	logger.Infof("engine: shutdown signal received, draining for up to %s", cfg.ShutdownDrainDeadline)
	close(stopCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainDeadline)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("engine: api server shutdown: %v", err)
	}
}

// buildExchanges constructs one venue.Exchange per venue with credentials
// configured. A venue with empty credentials is simply absent from the map;
// bots referencing it are skipped with a warning at wiring time.
func buildExchanges(cfg *config.Config) map[string]venue.Exchange {
	out := make(map[string]venue.Exchange)

	if cfg.BinanceAPIKey != "" {
		out["binance"] = binance.New(cfg.BinanceAPIKey, cfg.BinanceAPISecret, false)
	}
	if cfg.BybitAPIKey != "" {
		out["bybit"] = bybit.New(cfg.BybitAPIKey, cfg.BybitAPISecret, cfg.BybitTestnet, false)
	}
	if cfg.HyperliquidPrivateKey != "" {
		adapter, err := hyperliquid.New(cfg.HyperliquidPrivateKey, cfg.HyperliquidWallet, cfg.HyperliquidTestnet)
		if err != nil {
			logger.Errorf("engine: init hyperliquid adapter: %v", err)
		} else {
			out["hyperliquid"] = adapter
		}
	}
	if cfg.LighterAPIKeyPrivateKey != "" {
		adapter, err := lighter.New(cfg.LighterWalletAddr, cfg.LighterAPIKeyPrivateKey, cfg.LighterAPIKeyIndex)
		if err != nil {
			logger.Errorf("engine: init lighter adapter: %v", err)
		} else {
			out["lighter"] = adapter
		}
	}
	return out
}

// registerKlineSources wires each venue's rolling kline buffer, fed tick by
// tick off the same ingress stream the consumer and alert watcher see (see
// tickFanout.Push), and, when REST fallback is enabled, binance's governed
// REST gateway, the only venue with a RESTKlineFetcher. Returns the buffers
// keyed by venue so the caller can hand them to tickFanout.
func registerKlineSources(openPrices *cache.OpenPriceCache, cfg *config.Config, exchanges map[string]venue.Exchange) map[string]*marketdata.KlineBuffer {
	buffers := make(map[string]*marketdata.KlineBuffer, len(exchanges))
	for name := range exchanges {
		buf := marketdata.NewKlineBuffer(50)
		buffers[name] = buf
		var gw *marketdata.RESTKlineGateway
		if cfg.RESTKlineFallbackEnabled && name == "binance" && cfg.BinanceAPIKey != "" {
			fetcher := binance.NewKlineFetcher(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
			gw = marketdata.NewRESTKlineGateway(fetcher, cfg.RESTKlineCircuitWindow, cfg.RESTKlineMaxInFlight, cfg.RESTKlineQueueCapacity)
		}
		openPrices.RegisterVenue(name, buf, gw)
	}
	return buffers
}

// tickFanout implements ingress.Sink, fanning every decoded tick out to the
// three independent branches spec.md §2 draws off Ingress: the Tick
// Consumer (OC detector + order routing), this venue's kline buffer (so the
// Open-Price Cache's WS tiers have something to resolve against), and the
// alert watcher's parallel Telegram-notification path.
type tickFanout struct {
	consumer     *consumer.Consumer
	klineBuffers map[string]*marketdata.KlineBuffer
	alerts       *alerts.Watcher
}

func (f *tickFanout) Push(t detector.Tick) {
	f.consumer.Push(t)
	if buf, ok := f.klineBuffers[t.Venue]; ok {
		buf.Ingest(t.Symbol, t.Price, t.Timestamp)
	}
	if f.alerts != nil {
		f.alerts.Evaluate(context.Background(), t.Venue, t.Symbol, t.Price, t.Timestamp)
	}
}

// wireIngress builds one WebSocket ingress client for each of binance and
// bybit that has at least one active strategy, subscribed to every symbol
// that venue trades. Other venues get no ingress client.
func wireIngress(sink ingress.Sink, strategies []model.Strategy) []*ingress.Client {
	symbolsByVenue := make(map[string]map[string]bool)
	for _, st := range strategies {
		if symbolsByVenue[st.Venue] == nil {
			symbolsByVenue[st.Venue] = make(map[string]bool)
		}
		symbolsByVenue[st.Venue][st.Symbol] = true
	}

	var clients []*ingress.Client
	if syms, ok := symbolsByVenue["binance"]; ok {
		c := ingress.New("binance", ingress.BinanceMarkPriceURL, ingress.DecodeBinance, sink, ingress.SubscribeBinance)
		c.Subscribe(keys(syms)...)
		clients = append(clients, c)
	}
	if syms, ok := symbolsByVenue["bybit"]; ok {
		c := ingress.New("bybit", ingress.BybitLinearPublicURL, ingress.DecodeBybit, sink, ingress.SubscribeBybit)
		c.Subscribe(keys(syms)...)
		clients = append(clients, c)
	}
	return clients
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func notifierOrNil(tg *telegram.Dispatcher) orderservice.Notifier {
	if tg == nil {
		return nil
	}
	return tg
}
