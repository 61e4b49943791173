package ingress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ocengine/internal/detector"
)

type fakeSink struct {
	mu    sync.Mutex
	ticks []detector.Tick
}

func (f *fakeSink) Push(t detector.Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, t)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func TestClientDecodesAndPushesTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			conn.WriteMessage(websocket.TextMessage, []byte("BTCUSDT:100.5"))
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	decode := func(venue string, raw []byte) []detector.Tick {
		return []detector.Tick{{Venue: venue, Symbol: "BTCUSDT", Price: 100.5, Timestamp: 1}}
	}
	sink := &fakeSink{}
	c := New("binance", wsURL, decode, sink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if sink.count() == 0 {
		t.Fatal("expected at least one tick pushed")
	}
}

func TestClientReplaysSubscriptionsOnReconnect(t *testing.T) {
	var gotSubs [][]string
	var mu sync.Mutex
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close() // immediately drop to force a reconnect
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	decode := func(venue string, raw []byte) []detector.Tick { return nil }
	subscribeFn := func(conn *websocket.Conn, symbols []string) error {
		mu.Lock()
		gotSubs = append(gotSubs, append([]string(nil), symbols...))
		mu.Unlock()
		return nil
	}
	sink := &fakeSink{}
	c := New("binance", wsURL, decode, sink, subscribeFn)
	c.Subscribe("BTCUSDT", "ETHUSDT")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(gotSubs) < 1 {
		t.Fatal("expected at least one subscribe call")
	}
	if len(gotSubs[0]) != 2 {
		t.Fatalf("subscribed symbols = %v, want 2 entries", gotSubs[0])
	}
}
