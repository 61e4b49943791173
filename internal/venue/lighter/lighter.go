// Package lighter adapts elliottech/lighter-go's signer client to the
// venue.Exchange contract. Lighter is an L2 order-book exchange: orders are
// signed locally with an API-key keypair (index + private key) rather than
// an HMAC secret, mirroring the teacher's NewLighterTraderV2(walletAddr,
// apiKeyPrivateKey, apiKeyIndex) construction (trader/auto_trader.go case
// "lighter"). Mainnet only, per the teacher's comment that Lighter testnet
// is disabled.
package lighter

import (
	"context"
	"fmt"
	"strconv"

	lighter "github.com/elliottech/lighter-go"

	"ocengine/internal/errs"
	"ocengine/internal/model"
	"ocengine/internal/venue"
)

// Adapter wraps a lighter-go signer client for one account.
type Adapter struct {
	client     *lighter.TxClient
	accountIdx int64
}

func New(walletAddr, apiKeyPrivateKey string, apiKeyIndex int) (*Adapter, error) {
	client, err := lighter.NewTxClient(lighter.MainnetAPIURL, apiKeyPrivateKey, uint8(apiKeyIndex))
	if err != nil {
		return nil, fmt.Errorf("lighter: init signer client: %w", err)
	}
	accountIdx, err := client.ResolveAccountIndex(context.Background(), walletAddr)
	if err != nil {
		return nil, fmt.Errorf("lighter: resolve account index for %s: %w", walletAddr, err)
	}
	return &Adapter{client: client, accountIdx: accountIdx}, nil
}

func (a *Adapter) Name() string { return "lighter" }

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	isAsk := req.Side == model.SideShort
	if req.ReduceOnly {
		isAsk = req.Side == model.SideLong // exit trades the opposite direction
	}

	orderType := lighter.OrderTypeLimit
	if req.Type == venue.OrderTypeMarket {
		orderType = lighter.OrderTypeMarket
	}

	tx, err := a.client.CreateOrder(ctx, lighter.CreateOrderParams{
		AccountIndex: a.accountIdx,
		MarketSymbol: req.Symbol,
		IsAsk:        isAsk,
		BaseAmount:   req.Quantity,
		Price:        req.Price,
		OrderType:    orderType,
		ReduceOnly:   req.ReduceOnly,
	})
	if err != nil {
		return venue.OrderAck{}, classifyLighterErr(err)
	}
	return venue.OrderAck{OrderID: strconv.FormatInt(tx.OrderIndex, 10), Status: "submitted"}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	idx, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("lighter: invalid order id %q: %w", orderID, err)
	}
	_, err = a.client.CancelOrder(ctx, a.accountIdx, idx)
	return classifyLighterErr(err)
}

func (a *Adapter) GetAccount(ctx context.Context) (venue.AccountInfo, error) {
	acct, err := a.client.GetAccount(ctx, a.accountIdx)
	if err != nil {
		return venue.AccountInfo{}, classifyLighterErr(err)
	}
	return venue.AccountInfo{AvailableBalance: acct.AvailableBalance, TotalEquity: acct.TotalEquity}, nil
}

func (a *Adapter) GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error) {
	markets, err := a.client.ListMarkets(ctx)
	if err != nil {
		return nil, classifyLighterErr(err)
	}
	filters := make([]model.SymbolFilter, 0, len(markets))
	for _, m := range markets {
		filters = append(filters, model.SymbolFilter{
			Venue: "lighter", Symbol: m.Symbol,
			TickSize: m.PriceTick, StepSize: m.SizeTick, MinNotional: m.MinBaseAmount * m.PriceTick,
		})
	}
	return filters, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := a.client.UpdateLeverage(ctx, a.accountIdx, symbol, leverage)
	return classifyLighterErr(err)
}

func classifyLighterErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.Transient(err)
}

var _ venue.Exchange = (*Adapter)(nil)
