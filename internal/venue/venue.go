// Package venue defines the exchange-agnostic contract the Order Service
// and the Symbol-Filter refresh job drive: signed order placement, account
// reads, and exchange-info discovery, implemented per exchange in
// internal/venue/{binance,bybit,hyperliquid,lighter}.
package venue

import (
	"context"

	"ocengine/internal/model"
)

// OrderType is the subset of order types the Order Service ever submits.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// OrderRequest is one signed order submission (spec.md §4.7-§4.8): entry,
// take-profit, or stop-loss, always reduce-only for exits.
type OrderRequest struct {
	Symbol      string
	Side        model.Side
	Type        OrderType
	Quantity    float64 // already filter-rounded
	Price       float64 // required for LIMIT; ignored for MARKET
	StopPrice   float64 // required for STOP_MARKET
	ReduceOnly  bool
	Hedge       bool // account is in hedge mode: positionSide must be set
	TimeInForce string
}

// OrderAck is the venue's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID  string
	AvgPrice float64 // 0 if not yet filled (resting LIMIT/STOP)
	Status   string
}

// AccountInfo is the subset of account state the Order Service consults for
// admission (available balance) and position discovery.
type AccountInfo struct {
	AvailableBalance float64
	TotalEquity      float64
}

// Exchange is the per-venue trading surface, implemented by each adapter.
type Exchange interface {
	Name() string
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetAccount(ctx context.Context) (AccountInfo, error)
	GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
