package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"

	"ocengine/internal/detector"
	"ocengine/internal/logger"
)

// BybitLinearPublicURL is the V5 linear-perpetual public WS endpoint.
const BybitLinearPublicURL = "wss://stream.bybit.com/v5/public/linear"

type bybitTickerEvent struct {
	Topic string `json:"topic"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
	} `json:"data"`
}

// DecodeBybit parses one tickers-topic frame into zero or more ticks.
func DecodeBybit(venue string, raw []byte) []detector.Tick {
	var ev bybitTickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Data.Symbol == "" {
		return nil
	}
	price, err := strconv.ParseFloat(ev.Data.MarkPrice, 64)
	if err != nil || price <= 0 {
		return nil
	}
	return []detector.Tick{{Venue: venue, Symbol: ev.Data.Symbol, Price: price, Timestamp: ev.Ts}}
}

// SubscribeBybit sends the V5 "tickers.<symbol>" subscribe frame.
func SubscribeBybit(conn *websocket.Conn, symbols []string) error {
	args := make([]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, fmt.Sprintf("tickers.%s", s))
	}
	msg := map[string]interface{}{"op": "subscribe", "args": args}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	logger.Infof("ingress[bybit]: subscribed to %d ticker topics", len(symbols))
	return nil
}
