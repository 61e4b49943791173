// Package orderservice implements the per-bot order state machine of
// spec.md §4.8: admission against an open-position cache, failure cooldown,
// filter resolution, entry submission, paired TP/SL placement, and
// position-record creation, with exchange-error classification driving
// retry/backoff/cooldown/notify behavior.
package orderservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ocengine/internal/cache"
	"ocengine/internal/detector"
	"ocengine/internal/errs"
	"ocengine/internal/logger"
	"ocengine/internal/metrics"
	"ocengine/internal/model"
	"ocengine/internal/store"
	"ocengine/internal/venue"
)

// Notifier delivers human-readable order-lifecycle messages; implemented
// by internal/telegram.Dispatcher.
type Notifier interface {
	Notify(chatIDs []int64, text string)
}

// PositionStore is the subset of *store.Store the Order Service persists
// through.
type PositionStore interface {
	FindOpenPositions(botID, strategyID string) ([]model.Position, error)
	InsertPosition(p model.Position) error
	UpdatePosition(id string, status model.PositionStatus, closeReason string, pnl float64) error
}

// Config holds the tunables of spec.md §4.8.
type Config struct {
	OpenPositionTTL time.Duration // default 5s
	FailureCooldown time.Duration // default 60s
	TPSLDelay       time.Duration // default 1s
	MaxRetries      int           // default 3
	RetryBaseDelay  time.Duration // default 1s
	MaxExtendDiff   float64       // default 0.5
}

// restingEntry is a counter-trend LIMIT entry order still unfilled, tracked
// so later ticks can re-check its extend-admission (spec.md §4.7/§8 S4).
type restingEntry struct {
	strategyID string
	symbol     string
	orderID    string
	entry      float64
	delta      float64
}

// Service runs the order state machine for one bot against one exchange.
type Service struct {
	bot      model.Bot
	exchange venue.Exchange
	filters  *cache.SymbolFilterCache
	store    PositionStore
	notifier Notifier
	cfg      Config

	openPosCache *ttlFlagCache
	cooldowns    *ttlFlagCache

	pendingMu sync.Mutex
	pending   map[string]restingEntry // keyed by strategy_id
}

func New(bot model.Bot, exchange venue.Exchange, filters *cache.SymbolFilterCache, st PositionStore, notifier Notifier, cfg Config) *Service {
	if cfg.OpenPositionTTL <= 0 {
		cfg.OpenPositionTTL = 5 * time.Second
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = 60 * time.Second
	}
	if cfg.TPSLDelay <= 0 {
		cfg.TPSLDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.MaxExtendDiff <= 0 {
		cfg.MaxExtendDiff = 0.5
	}
	return &Service{
		bot: bot, exchange: exchange, filters: filters, store: st, notifier: notifier, cfg: cfg,
		openPosCache: newTTLFlagCache(),
		cooldowns:    newTTLFlagCache(),
		pending:      make(map[string]restingEntry),
	}
}

// Route implements consumer.OrderRouter for the bot's Order Service.
func (s *Service) Route(ctx context.Context, m detector.Match) error {
	strategyID := m.Result.Strategy.ID

	if s.openPosCache.Has(strategyID) {
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "skipped_open_position").Inc()
		return nil
	}
	if s.cooldowns.Has(strategyID) {
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "skipped_cooldown").Inc()
		return nil
	}
	if m.Plan.Skip {
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "skipped_plan").Inc()
		logger.Infof("orderservice[%s]: skip strategy=%s reason=%s", s.bot.ID, strategyID, m.Plan.SkipReason)
		return nil
	}

	if open, err := s.store.FindOpenPositions(s.bot.ID, strategyID); err != nil {
		return fmt.Errorf("orderservice: admission check: %w", err)
	} else if len(open) > 0 {
		s.openPosCache.Set(strategyID, s.cfg.OpenPositionTTL)
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "skipped_open_position").Inc()
		return nil
	}

	if s.bot.MaxConcurrentTrades > 0 {
		open, err := s.store.FindOpenPositions(s.bot.ID, "")
		if err != nil {
			return fmt.Errorf("orderservice: concurrency check: %w", err)
		}
		if len(open) >= s.bot.MaxConcurrentTrades {
			metrics.OrdersTotal.WithLabelValues(s.bot.ID, "skipped_max_concurrent").Inc()
			logger.Infof("orderservice[%s]: at max_concurrent_trades=%d, skipping strategy=%s", s.bot.ID, s.bot.MaxConcurrentTrades, strategyID)
			return nil
		}
	}

	filter, ok := s.filters.Get(s.bot.Venue, m.Result.Strategy.Symbol)
	if !ok {
		s.fail(strategyID, "symbol filter missing: not tradable")
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "fatal_no_filter").Inc()
		return fmt.Errorf("orderservice: no symbol filter for %s %s", s.bot.Venue, m.Result.Strategy.Symbol)
	}

	pos, err := s.executeEntry(ctx, m, filter)
	if err != nil {
		kind := errs.Classify(err)
		if errs.Retryable(err) {
			metrics.OrdersTotal.WithLabelValues(s.bot.ID, "transient_retry").Inc()
		} else {
			s.fail(strategyID, err.Error())
			metrics.OrdersTotal.WithLabelValues(s.bot.ID, string(kind.String())).Inc()
		}
		return err
	}

	if err := s.store.InsertPosition(pos); err != nil {
		return fmt.Errorf("orderservice: persist position: %w", err)
	}
	s.openPosCache.Set(strategyID, s.cfg.OpenPositionTTL)
	metrics.OrdersTotal.WithLabelValues(s.bot.ID, "submitted").Inc()
	s.notify(fmt.Sprintf("✅ %s %s %s entry=%.8g tp=%.8g", s.bot.Name, m.Result.Strategy.Symbol, pos.Side, pos.EntryPrice, pos.TakeProfitPrice))
	return nil
}

// executeEntry performs steps 4-7 of spec.md §4.8: filter rounding, entry
// submission with retry, paired TP/SL placement, position construction.
func (s *Service) executeEntry(ctx context.Context, m detector.Match, filter model.SymbolFilter) (model.Position, error) {
	entryPrice := roundToTick(m.Plan.Entry, filter.TickSize)
	qty, err := resolveQuantity(m.Result.Strategy.Amount, entryPrice, filter)
	if err != nil {
		return model.Position{}, err
	}

	orderType := venue.OrderTypeLimit
	if !m.Result.Strategy.IsReverseStrategy {
		orderType = venue.OrderTypeMarket
	}

	entryAck, err := s.submitWithRetry(ctx, venue.OrderRequest{
		Symbol: m.Result.Strategy.Symbol, Side: m.Plan.Side, Type: orderType,
		Quantity: qty, Price: entryPrice, Hedge: s.bot.MarginType == "hedge",
		TimeInForce: "GTC",
	})
	if err != nil {
		return model.Position{}, fmt.Errorf("orderservice: entry submission: %w", err)
	}

	fillPrice := entryAck.AvgPrice
	if fillPrice <= 0 {
		fillPrice = entryPrice // resting LIMIT / fill price unobtainable: fall back to entry
		if m.Plan.RestingLimit {
			s.trackResting(restingEntry{
				strategyID: m.Result.Strategy.ID, symbol: m.Result.Strategy.Symbol,
				orderID: entryAck.OrderID, entry: entryPrice, delta: m.Plan.Delta,
			})
		}
	}

	pos := model.Position{
		ID: uuid.NewString(), BotID: s.bot.ID, StrategyID: m.Result.Strategy.ID,
		Venue: s.bot.Venue, Symbol: m.Result.Strategy.Symbol, Side: m.Plan.Side,
		EntryPrice: fillPrice, Amount: qty,
		TakeProfitPrice: roundToTick(m.Plan.TakeProfit, filter.TickSize),
		EntryOrderID:    entryAck.OrderID,
		Status:          model.PositionOpen,
		OpenedAt:        time.Now(),
	}

	tpAck, err := s.submitWithRetry(ctx, venue.OrderRequest{
		Symbol: m.Result.Strategy.Symbol, Side: m.Plan.Side, Type: venue.OrderTypeLimit,
		Quantity: qty, Price: pos.TakeProfitPrice, ReduceOnly: true,
		Hedge: s.bot.MarginType == "hedge", TimeInForce: "GTC",
	})
	if err != nil {
		logger.Warnf("orderservice[%s]: TP placement failed for %s: %v", s.bot.ID, pos.ID, err)
	} else {
		pos.TPOrderID = tpAck.OrderID
	}

	if m.Plan.HasSL {
		time.Sleep(s.cfg.TPSLDelay) // respect per-endpoint rate limit between TP and SL
		slPrice := roundToTick(m.Plan.StopLoss, filter.TickSize)
		slAck, err := s.submitWithRetry(ctx, venue.OrderRequest{
			Symbol: m.Result.Strategy.Symbol, Side: m.Plan.Side, Type: venue.OrderTypeStopMarket,
			Quantity: qty, StopPrice: slPrice, ReduceOnly: true,
			Hedge: s.bot.MarginType == "hedge",
		})
		if err != nil {
			logger.Warnf("orderservice[%s]: SL placement failed for %s: %v", s.bot.ID, pos.ID, err)
		} else {
			pos.SLOrderID = slAck.OrderID
			v := slPrice
			pos.StopLossPrice = &v
		}
	}

	return pos, nil
}

// submitWithRetry applies spec.md §4.8 step 8: exponential backoff with a
// 3-retry cap for transient/rate-limited failures; anything else propagates
// immediately for the caller to classify as fatal.
func (s *Service) submitWithRetry(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		ack, err := s.exchange.PlaceOrder(ctx, req)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !errs.Retryable(err) || attempt == s.cfg.MaxRetries {
			return venue.OrderAck{}, err
		}
		delay := s.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return venue.OrderAck{}, ctx.Err()
		}
	}
	return venue.OrderAck{}, lastErr
}

func (s *Service) trackResting(r restingEntry) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[r.strategyID] = r
}

// CheckExtend re-evaluates every resting counter-trend LIMIT entry for this
// bot's symbol against a later tick (spec.md §4.7/§8 S4): once the market
// has run more than max_extend_diff_ratio × delta past the target entry,
// the order is stale and gets cancelled so the strategy can re-trigger
// fresh rather than fill far from its intended pullback.
func (s *Service) CheckExtend(ctx context.Context, venueName, symbol string, livePrice float64) {
	if venueName != s.bot.Venue {
		return
	}

	s.pendingMu.Lock()
	var stale []restingEntry
	for id, r := range s.pending {
		if r.symbol != symbol {
			continue
		}
		if !detector.ExtendAdmission(r.entry, r.delta, livePrice, s.cfg.MaxExtendDiff) {
			stale = append(stale, r)
			delete(s.pending, id)
		}
	}
	s.pendingMu.Unlock()

	for _, r := range stale {
		if err := s.exchange.CancelOrder(ctx, r.symbol, r.orderID); err != nil {
			logger.Warnf("orderservice[%s]: cancel stale resting entry %s: %v", s.bot.ID, r.orderID, err)
			continue
		}
		metrics.OrdersTotal.WithLabelValues(s.bot.ID, "extend_admission_cancelled").Inc()
		logger.Infof("orderservice[%s]: cancelled stale resting entry strategy=%s order=%s", s.bot.ID, r.strategyID, r.orderID)
	}
}

func (s *Service) fail(strategyID, reason string) {
	s.cooldowns.Set(strategyID, s.cfg.FailureCooldown)
	s.notify(fmt.Sprintf("⚠️ %s strategy=%s failed: %s", s.bot.Name, strategyID, reason))
}

func (s *Service) notify(text string) {
	if s.notifier == nil || len(s.bot.ChatIDs) == 0 {
		return
	}
	s.notifier.Notify(s.bot.ChatIDs, text)
}

var _ PositionStore = (*store.Store)(nil)
