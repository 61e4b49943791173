package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"ocengine/internal/detector"
	"ocengine/internal/logger"
)

// BinanceMarkPriceURL is the USDⓈ-M futures combined mark-price stream base,
// one update per second per symbol, used as the tick source (spec.md §4.4
// "price ticks", not trade prints, since mark price is what liquidation /
// OC-trigger systems key off in the teacher's domain).
const BinanceMarkPriceURL = "wss://fstream.binance.com/stream"

type binanceStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceMarkPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// DecodeBinance parses one combined-stream frame into zero or more ticks.
func DecodeBinance(venue string, raw []byte) []detector.Tick {
	var env binanceStreamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Data) == 0 {
		return nil
	}
	var ev binanceMarkPriceEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return nil
	}
	price, err := strconv.ParseFloat(ev.MarkPrice, 64)
	if err != nil || price <= 0 {
		return nil
	}
	return []detector.Tick{{Venue: venue, Symbol: ev.Symbol, Price: price, Timestamp: ev.EventTime}}
}

// SubscribeBinance sends the combined-stream SUBSCRIBE frame for
// <symbol>@markPrice@1s for every tracked symbol.
func SubscribeBinance(conn *websocket.Conn, symbols []string) error {
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, fmt.Sprintf("%s@markPrice@1s", strings.ToLower(s)))
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	logger.Infof("ingress[binance]: subscribed to %d mark-price streams", len(symbols))
	return nil
}
