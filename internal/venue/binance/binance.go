// Package binance adapts the go-binance/v2 futures client to the
// venue.Exchange contract. Order placement mirrors the builder-service
// style of the teacher's market data client, generalized from spot klines
// to signed futures order submission (CreateOrderService, ChangeLeverage,
// ExchangeInfo).
package binance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"ocengine/internal/errs"
	"ocengine/internal/logger"
	"ocengine/internal/marketdata"
	"ocengine/internal/model"
	"ocengine/internal/venue"
)

// Adapter wraps *futures.Client for one set of API credentials.
type Adapter struct {
	client *futures.Client
	hedge  bool
}

func New(apiKey, apiSecret string, hedgeMode bool) *Adapter {
	return &Adapter{client: futures.NewClient(apiKey, apiSecret), hedge: hedgeMode}
}

func (a *Adapter) Name() string { return "binance" }

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error) {
	side := futures.SideTypeBuy
	if req.Side == model.SideShort {
		side = futures.SideTypeSell
	}
	if req.ReduceOnly {
		// Exit orders submit on the opposite side of the position.
		if req.Side == model.SideLong {
			side = futures.SideTypeSell
		} else {
			side = futures.SideTypeBuy
		}
	}

	svc := a.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))

	if a.hedge {
		positionSide := futures.PositionSideTypeLong
		if req.Side == model.SideShort {
			positionSide = futures.PositionSideTypeShort
		}
		svc = svc.PositionSide(positionSide)
	} else if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	switch req.Type {
	case venue.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	case venue.OrderTypeLimit:
		tif := futures.TimeInForceTypeGTC
		if req.TimeInForce == "GTX" {
			tif = futures.TimeInForceTypeGTX
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(tif).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	case venue.OrderTypeStopMarket:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(strconv.FormatFloat(req.StopPrice, 'f', -1, 64)).
			WorkingType(futures.WorkingTypeMarkPrice)
	default:
		return venue.OrderAck{}, fmt.Errorf("binance: unsupported order type %q", req.Type)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return venue.OrderAck{}, classifyBinanceErr(err)
	}

	avgPrice, _ := strconv.ParseFloat(res.AvgPrice, 64)
	return venue.OrderAck{
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		AvgPrice: avgPrice,
		Status:   string(res.Status),
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid order id %q: %w", orderID, err)
	}
	_, err = a.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return classifyBinanceErr(err)
}

func (a *Adapter) GetAccount(ctx context.Context) (venue.AccountInfo, error) {
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return venue.AccountInfo{}, classifyBinanceErr(err)
	}
	avail, _ := strconv.ParseFloat(acct.AvailableBalance, 64)
	equity, _ := strconv.ParseFloat(acct.TotalWalletBalance, 64)
	return venue.AccountInfo{AvailableBalance: avail, TotalEquity: equity}, nil
}

func (a *Adapter) GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error) {
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr(err)
	}

	filters := make([]model.SymbolFilter, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		sf := model.SymbolFilter{Venue: "binance", Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				sf.TickSize, _ = strconv.ParseFloat(toStr(f["tickSize"]), 64)
			case "LOT_SIZE":
				sf.StepSize, _ = strconv.ParseFloat(toStr(f["stepSize"]), 64)
			case "MIN_NOTIONAL":
				sf.MinNotional, _ = strconv.ParseFloat(toStr(f["notional"]), 64)
			}
		}
		filters = append(filters, sf)
	}
	return filters, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := a.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return classifyBinanceErr(err)
}

// KlineFetcher implements marketdata.RESTKlineFetcher for the optional
// REST fallback tier (spec.md §4.3), off by default.
type KlineFetcher struct {
	client *futures.Client
}

func NewKlineFetcher(apiKey, apiSecret string) *KlineFetcher {
	return &KlineFetcher{client: futures.NewClient(apiKey, apiSecret)}
}

func (f *KlineFetcher) FetchKline(ctx context.Context, symbol, interval string, bucketStart int64) (marketdata.Kline, error) {
	klines, err := f.client.NewKlinesService().
		Symbol(symbol).Interval(interval).StartTime(bucketStart).Limit(1).Do(ctx)
	if err != nil {
		return marketdata.Kline{}, classifyBinanceErr(err)
	}
	if len(klines) == 0 {
		return marketdata.Kline{}, fmt.Errorf("binance: no kline for %s %s at %d", symbol, interval, bucketStart)
	}
	k := klines[0]
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closePrice, _ := strconv.ParseFloat(k.Close, 64)
	return marketdata.Kline{
		OpenTime: k.OpenTime, Open: open, High: high, Low: low,
		Close: closePrice, CloseTime: k.CloseTime,
	}, nil
}

func toStr(v interface{}) string {
	s, _ := v.(string)
	return s
}

// classifyBinanceErr wraps venue errors so the Order Service's retry logic
// can distinguish rate limits from hard failures without parsing strings
// at every call site (spec.md §4.8).
func classifyBinanceErr(err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := err.(*futures.APIError)
	if !ok {
		logger.Warnf("binance: non-API error: %v", err)
		return errs.Transient(err)
	}
	switch {
	case apiErr.Code == -1021 || apiErr.Code == -1003:
		return errs.RateLimited(err)
	case apiErr.Code == -2019 || apiErr.Code == -2018:
		return errs.Business(fmt.Errorf("insufficient margin: %w", err))
	case apiErr.Code == -1013 || apiErr.Code == -4003 || apiErr.Code == -4014:
		return errs.Precision(fmt.Errorf("filter rejection: %w", err))
	case apiErr.Code <= -2000:
		return errs.Fatal(err)
	default:
		return errs.Transient(err)
	}
}

var _ venue.Exchange = (*Adapter)(nil)
var _ marketdata.RESTKlineFetcher = (*KlineFetcher)(nil)
