// Package bybit adapts the bybit.go.api V5 REST client to the
// venue.Exchange contract. The V5 API is parameter-map based rather than
// builder-typed like go-binance/v2/futures, so requests are assembled as
// map[string]interface{} and responses read back through
// bybit.ServerResponse, per the SDK's own usage pattern.
package bybit

import (
	"context"
	"fmt"
	"strconv"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"ocengine/internal/errs"
	"ocengine/internal/model"
	"ocengine/internal/venue"
)

const category = "linear" // USDT perpetuals

// Adapter wraps the bybit.go.api HTTP client for one API key pair.
type Adapter struct {
	client *bybit.Client
	hedge  bool
}

func New(apiKey, apiSecret string, testnet, hedgeMode bool) *Adapter {
	base := bybit.MAINNET
	if testnet {
		base = bybit.TESTNET
	}
	client := bybit.NewBybitHttpClient(apiKey, apiSecret, bybit.WithBaseURL(base))
	return &Adapter{client: client, hedge: hedgeMode}
}

func (a *Adapter) Name() string { return "bybit" }

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	side := "Buy"
	if req.Side == model.SideShort {
		side = "Sell"
	}
	if req.ReduceOnly {
		if req.Side == model.SideLong {
			side = "Sell"
		} else {
			side = "Buy"
		}
	}

	params := map[string]interface{}{
		"category":   category,
		"symbol":     req.Symbol,
		"side":       side,
		"qty":        strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"reduceOnly": req.ReduceOnly,
	}
	if a.hedge {
		positionIdx := 1 // Buy-side hedge
		if req.Side == model.SideShort {
			positionIdx = 2
		}
		params["positionIdx"] = positionIdx
	}

	switch req.Type {
	case venue.OrderTypeMarket:
		params["orderType"] = "Market"
	case venue.OrderTypeLimit:
		params["orderType"] = "Limit"
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params["timeInForce"] = tif
	case venue.OrderTypeStopMarket:
		params["orderType"] = "Market"
		params["triggerPrice"] = strconv.FormatFloat(req.StopPrice, 'f', -1, 64)
		params["triggerBy"] = "MarkPrice"
	default:
		return venue.OrderAck{}, fmt.Errorf("bybit: unsupported order type %q", req.Type)
	}

	resp, err := a.client.NewPlaceOrderService(params).Do(ctx)
	if err != nil {
		return venue.OrderAck{}, classifyBybitErr(err, 0)
	}
	if resp.RetCode != 0 {
		return venue.OrderAck{}, classifyBybitErr(fmt.Errorf("%s", resp.RetMsg), resp.RetCode)
	}

	result, _ := resp.Result.(map[string]interface{})
	orderID, _ := result["orderId"].(string)
	return venue.OrderAck{OrderID: orderID, Status: "submitted"}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{"category": category, "symbol": symbol, "orderId": orderID}
	resp, err := a.client.NewCancelOrderService(params).Do(ctx)
	if err != nil {
		return classifyBybitErr(err, 0)
	}
	if resp.RetCode != 0 {
		return classifyBybitErr(fmt.Errorf("%s", resp.RetMsg), resp.RetCode)
	}
	return nil
}

func (a *Adapter) GetAccount(ctx context.Context) (venue.AccountInfo, error) {
	params := map[string]interface{}{"accountType": "UNIFIED"}
	resp, err := a.client.NewGetWalletBalanceService(params).Do(ctx)
	if err != nil {
		return venue.AccountInfo{}, classifyBybitErr(err, 0)
	}
	if resp.RetCode != 0 {
		return venue.AccountInfo{}, classifyBybitErr(fmt.Errorf("%s", resp.RetMsg), resp.RetCode)
	}

	result, _ := resp.Result.(map[string]interface{})
	lists, _ := result["list"].([]interface{})
	if len(lists) == 0 {
		return venue.AccountInfo{}, fmt.Errorf("bybit: empty wallet balance response")
	}
	account, _ := lists[0].(map[string]interface{})
	equity, _ := strconv.ParseFloat(fmt.Sprint(account["totalEquity"]), 64)
	avail, _ := strconv.ParseFloat(fmt.Sprint(account["totalAvailableBalance"]), 64)
	return venue.AccountInfo{AvailableBalance: avail, TotalEquity: equity}, nil
}

func (a *Adapter) GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error) {
	params := map[string]interface{}{"category": category}
	resp, err := a.client.NewGetInstrumentsInfoService(params).Do(ctx)
	if err != nil {
		return nil, classifyBybitErr(err, 0)
	}
	if resp.RetCode != 0 {
		return nil, classifyBybitErr(fmt.Errorf("%s", resp.RetMsg), resp.RetCode)
	}

	result, _ := resp.Result.(map[string]interface{})
	list, _ := result["list"].([]interface{})
	filters := make([]model.SymbolFilter, 0, len(list))
	for _, item := range list {
		inst, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		status, _ := inst["status"].(string)
		if status != "Trading" {
			continue
		}
		sym, _ := inst["symbol"].(string)
		sf := model.SymbolFilter{Venue: "bybit", Symbol: sym}
		if pf, ok := inst["priceFilter"].(map[string]interface{}); ok {
			sf.TickSize, _ = strconv.ParseFloat(fmt.Sprint(pf["tickSize"]), 64)
		}
		if lf, ok := inst["lotSizeFilter"].(map[string]interface{}); ok {
			sf.StepSize, _ = strconv.ParseFloat(fmt.Sprint(lf["qtyStep"]), 64)
			sf.MinNotional, _ = strconv.ParseFloat(fmt.Sprint(lf["minNotionalValue"]), 64)
		}
		filters = append(filters, sf)
	}
	return filters, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	params := map[string]interface{}{
		"category": category, "symbol": symbol,
		"buyLeverage": lev, "sellLeverage": lev,
	}
	resp, err := a.client.NewSetLeverageService(params).Do(ctx)
	if err != nil {
		return classifyBybitErr(err, 0)
	}
	if resp.RetCode != 0 && resp.RetCode != 110043 { // 110043: leverage not modified, treat as success
		return classifyBybitErr(fmt.Errorf("%s", resp.RetMsg), resp.RetCode)
	}
	return nil
}

// classifyBybitErr maps Bybit V5 retCode families to the shared error
// taxonomy (spec.md §4.8): 10006 is the rate-limit code, 110xxx covers
// order/margin rejections.
func classifyBybitErr(err error, retCode int) error {
	switch {
	case retCode == 10006 || retCode == 10018:
		return errs.RateLimited(err)
	case retCode == 110007 || retCode == 110012: // insufficient balance/margin
		return errs.Business(err)
	case retCode == 110017 || retCode == 110094: // qty/price out of filter bounds
		return errs.Precision(err)
	case retCode >= 110000:
		return errs.Fatal(err)
	default:
		return errs.Transient(err)
	}
}

var _ venue.Exchange = (*Adapter)(nil)
