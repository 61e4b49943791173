// Package ingress runs the long-lived venue WebSocket clients that feed raw
// price ticks into the Tick Consumer. Connection lifecycle (reconnect with
// exponential backoff, subscription replay on reconnect) follows the same
// shape the teacher's venues poll on a timer (trader/auto_trader.go
// ScanInterval loop); here the analogous role is played by a push feed
// instead of a pull loop, adapted from the websocket reconnect pattern used
// elsewhere in the retrieved pack (internal/exchange/ws.go).
package ingress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ocengine/internal/detector"
	"ocengine/internal/logger"
)

const (
	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
)

// Sink is the destination for decoded ticks; *consumer.Consumer implements
// this.
type Sink interface {
	Push(t detector.Tick)
}

// Decoder turns one raw WS text/binary frame into zero or more ticks. Each
// venue adapter supplies its own wire-format decoder.
type Decoder func(venue string, raw []byte) []detector.Tick

// Client is one venue's WebSocket ingress connection.
type Client struct {
	venue  string
	url    string
	decode Decoder
	sink   Sink

	subMu       sync.Mutex
	subscribe   []string // symbols currently subscribed; replayed on reconnect
	subscribeFn func(conn *websocket.Conn, symbols []string) error

	connected atomic.Bool
}

// Ready reports whether the connection is currently established, for the
// debug/operator API's readiness check.
func (c *Client) Ready() bool { return c.connected.Load() }

// New builds a Client for one venue. subscribeFn sends whatever
// venue-specific subscribe payload is needed once the connection is open;
// it is called again after every reconnect with the full symbol set.
func New(venue, url string, decode Decoder, sink Sink, subscribeFn func(conn *websocket.Conn, symbols []string) error) *Client {
	return &Client{venue: venue, url: url, decode: decode, sink: sink, subscribeFn: subscribeFn}
}

// Subscribe adds symbols to the tracked set. The subscribe frame is sent on
// the next (re)connect; an already open connection is not re-subscribed.
// Symbols persist across reconnects.
func (c *Client) Subscribe(symbols ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		c.subscribe = append(c.subscribe, s)
	}
}

// Run connects and maintains the connection until ctx is cancelled,
// reconnecting with exponential backoff and replaying subscriptions.
func (c *Client) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("ingress[%s]: disconnected, reconnecting in %s: %v", c.venue, backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.subMu.Lock()
	symbols := append([]string(nil), c.subscribe...)
	c.subMu.Unlock()
	if len(symbols) > 0 && c.subscribeFn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.subscribeFn(conn, symbols); err != nil {
			return err
		}
	}

	logger.Infof("ingress[%s]: connected, %d symbols subscribed", c.venue, len(symbols))
	c.connected.Store(true)
	defer c.connected.Store(false)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return err
			}
		}
		for _, t := range c.decode(c.venue, raw) {
			c.sink.Push(t)
		}
	}
}
