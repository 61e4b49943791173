// Package hyperliquid adapts sonirico/go-hyperliquid's Exchange client to
// the venue.Exchange contract. Hyperliquid orders are authenticated by an
// ECDSA wallet signature rather than an HMAC API key/secret pair, so
// construction takes a private key and the wallet address whose perpetual
// account is traded, mirroring the teacher's NewHyperliquidTrader(privateKey,
// walletAddr, testnet) signature (trader/auto_trader.go case "hyperliquid").
package hyperliquid

import (
	"context"
	"fmt"
	"strconv"

	hl "github.com/sonirico/go-hyperliquid"

	"ocengine/internal/errs"
	"ocengine/internal/model"
	"ocengine/internal/venue"
)

// Adapter wraps a go-hyperliquid Exchange client for one wallet.
type Adapter struct {
	exchange *hl.Exchange
	wallet   string
}

func New(privateKeyHex, walletAddr string, testnet bool) (*Adapter, error) {
	baseURL := hl.MainnetAPIURL
	if testnet {
		baseURL = hl.TestnetAPIURL
	}
	ex, err := hl.NewExchange(privateKeyHex, baseURL, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: init exchange client: %w", err)
	}
	return &Adapter{exchange: ex, wallet: walletAddr}, nil
}

func (a *Adapter) Name() string { return "hyperliquid" }

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	isBuy := req.Side == model.SideLong
	if req.ReduceOnly {
		isBuy = req.Side != model.SideLong // exit trades the opposite direction
	}

	orderType := hl.OrderType{Limit: &hl.LimitOrderType{Tif: "Gtc"}}
	limitPx := req.Price
	switch req.Type {
	case venue.OrderTypeMarket:
		orderType = hl.OrderType{Limit: &hl.LimitOrderType{Tif: "Ioc"}}
		limitPx = req.Price // caller must pass a marketable slippage-adjusted price
	case venue.OrderTypeStopMarket:
		orderType = hl.OrderType{Trigger: &hl.TriggerOrderType{
			TriggerPx: strconv.FormatFloat(req.StopPrice, 'f', -1, 64),
			IsMarket:  true,
			Tpsl:      "sl",
		}}
	case venue.OrderTypeLimit:
		// default GTC limit above
	default:
		return venue.OrderAck{}, fmt.Errorf("hyperliquid: unsupported order type %q", req.Type)
	}

	res, err := a.exchange.Order(ctx, hl.OrderRequest{
		Coin:       req.Symbol,
		IsBuy:      isBuy,
		Sz:         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		LimitPx:    strconv.FormatFloat(limitPx, 'f', -1, 64),
		OrderType:  orderType,
		ReduceOnly: req.ReduceOnly,
	})
	if err != nil {
		return venue.OrderAck{}, classifyHLErr(err)
	}
	if res.Status != "ok" {
		return venue.OrderAck{}, errs.Business(fmt.Errorf("hyperliquid: order rejected: %s", res.Status))
	}

	var orderID string
	var avgPrice float64
	if len(res.Response.Data.Statuses) > 0 {
		st := res.Response.Data.Statuses[0]
		if st.Resting != nil {
			orderID = strconv.FormatUint(st.Resting.OID, 10)
		}
		if st.Filled != nil {
			orderID = strconv.FormatUint(st.Filled.OID, 10)
			avgPrice, _ = strconv.ParseFloat(st.Filled.AvgPx, 64)
		}
	}
	return venue.OrderAck{OrderID: orderID, AvgPrice: avgPrice, Status: res.Status}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	oid, err := strconv.ParseUint(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("hyperliquid: invalid order id %q: %w", orderID, err)
	}
	_, err = a.exchange.Cancel(ctx, symbol, oid)
	return classifyHLErr(err)
}

func (a *Adapter) GetAccount(ctx context.Context) (venue.AccountInfo, error) {
	state, err := a.exchange.Info().UserState(ctx, a.wallet)
	if err != nil {
		return venue.AccountInfo{}, classifyHLErr(err)
	}
	equity, _ := strconv.ParseFloat(state.MarginSummary.AccountValue, 64)
	avail, _ := strconv.ParseFloat(state.Withdrawable, 64)
	return venue.AccountInfo{AvailableBalance: avail, TotalEquity: equity}, nil
}

func (a *Adapter) GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error) {
	meta, err := a.exchange.Info().Meta(ctx)
	if err != nil {
		return nil, classifyHLErr(err)
	}
	filters := make([]model.SymbolFilter, 0, len(meta.Universe))
	for _, u := range meta.Universe {
		tick := 1.0
		if u.SzDecimals >= 0 {
			tick = 1 / pow10(u.SzDecimals)
		}
		filters = append(filters, model.SymbolFilter{
			Venue:       "hyperliquid",
			Symbol:      u.Name,
			TickSize:    tick,
			StepSize:    tick,
			MaxLeverage: u.MaxLeverage,
		})
	}
	return filters, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := a.exchange.UpdateLeverage(ctx, symbol, "cross", leverage)
	return classifyHLErr(err)
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func classifyHLErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.Transient(err)
}

var _ venue.Exchange = (*Adapter)(nil)
