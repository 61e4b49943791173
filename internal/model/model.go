// Package model holds the core data types shared across the engine:
// Strategy, Bot, SymbolFilter, Position, MatchResult, AlertWatcher/State.
// These mirror spec.md §3 exactly; JSON tags follow the teacher's
// store.Strategy / store.TacticConfig naming convention (store/strategy.go).
package model

import "time"

// TradeType is the strategy's allowed trade direction.
type TradeType string

const (
	TradeLong  TradeType = "long"
	TradeShort TradeType = "short"
	TradeBoth  TradeType = "both"
)

// Side is the actionable order side, or "" meaning "skip".
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideNone  Side = ""
)

// Direction is the OC move direction for one match.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Strategy is one user-configured OC-trigger rule, cached by (venue, symbol).
type Strategy struct {
	ID                string    `json:"id"`
	BotID             string    `json:"bot_id"`
	Venue             string    `json:"venue"`
	Symbol            string    `json:"symbol"`
	Interval          string    `json:"interval"`
	OCThreshold       float64   `json:"oc_threshold"` // percent
	TradeType         TradeType `json:"trade_type"`
	IsReverseStrategy bool      `json:"is_reverse_strategy"`
	Extend            int       `json:"extend"` // 0-100
	TakeProfit        int       `json:"take_profit"` // tenths of a percent
	StopLoss          int       `json:"stoploss"`     // tenths of a percent; 0 = no SL
	Reduce            int       `json:"reduce"`
	UpReduce          int       `json:"up_reduce"`
	Amount            float64   `json:"amount"` // notional, quote currency
	IsActive          bool      `json:"is_active"`
}

// TakeProfitPercent returns the effective take-profit percentage.
func (s Strategy) TakeProfitPercent() float64 { return float64(s.TakeProfit) / 10 }

// StopLossPercent returns the effective stop-loss percentage (0 if none).
func (s Strategy) StopLossPercent() float64 { return float64(s.StopLoss) / 10 }

// HasStopLoss reports whether this strategy places an SL at all.
func (s Strategy) HasStopLoss() bool { return s.StopLoss > 0 }

// Bot owns zero or more Strategies and Positions on one venue.
type Bot struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Venue               string   `json:"venue"`
	ExchangeID          string   `json:"exchange_id"` // credentials reference
	IsReverseDefault    bool     `json:"is_reverse_strategy"`
	MaxConcurrentTrades int      `json:"max_concurrent_trades"`
	DefaultLeverage     int      `json:"default_leverage"`
	MarginType          string   `json:"margin_type"` // "isolated" | "cross"
	ChatIDs             []int64  `json:"chat_ids"`
	IsActive            bool     `json:"is_active"`
}

// SymbolFilter is the exchange precision contract for one (venue, symbol).
type SymbolFilter struct {
	Venue       string  `json:"venue"`
	Symbol      string  `json:"symbol"`
	TickSize    float64 `json:"tick_size"`
	StepSize    float64 `json:"step_size"`
	MinNotional float64 `json:"min_notional"`
	MaxLeverage int     `json:"max_leverage"`
}

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen      PositionStatus = "open"
	PositionClosed    PositionStatus = "closed"
	PositionCancelled PositionStatus = "cancelled"
)

// Position is one open/closed derivative trade produced by the Order
// Service, created on entry-order acknowledgement.
type Position struct {
	ID            string         `json:"id"`
	BotID         string         `json:"bot_id"`
	StrategyID    string         `json:"strategy_id"`
	Venue         string         `json:"venue"`
	Symbol        string         `json:"symbol"`
	Side          Side           `json:"side"`
	EntryPrice    float64        `json:"entry_price"`
	Amount        float64        `json:"amount"` // contracts/quantity
	TakeProfitPrice float64      `json:"take_profit_price"`
	StopLossPrice *float64       `json:"stop_loss_price"` // nullable
	TPOrderID     string         `json:"tp_order_id"`
	SLOrderID     string         `json:"sl_order_id"`
	EntryOrderID  string         `json:"entry_order_id"`
	Status        PositionStatus `json:"status"`
	OpenedAt      time.Time      `json:"opened_at"`
	CloseReason   string         `json:"close_reason"`
	PnL           float64        `json:"pnl"`
}

// MatchResult is an ephemeral OC-threshold crossing produced by the
// detector for one strategy candidate.
type MatchResult struct {
	Strategy     Strategy
	OCPercent    float64
	Direction    Direction
	CurrentPrice float64
	OpenPrice    float64
	Interval     string
	Timestamp    int64
}

// AlertWatcher is one alert subscription, rebuilt periodically from the
// store.
type AlertWatcher struct {
	ConfigID         string
	Venue            string
	Symbols          map[string]struct{}
	Intervals        map[string]struct{}
	ThresholdPercent float64
	ChatID           int64
}

// AlertState is the per (config_id, venue, symbol, interval) arming state.
type AlertState struct {
	LastAlertTime  time.Time
	Armed          bool
	LastAlertOCAbs float64
}
