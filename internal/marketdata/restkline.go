package marketdata

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RESTKlineFetcher performs the actual venue REST call; implemented per
// venue adapter (internal/venue/*). Kept separate from KlineSource so the
// governance machinery below (circuit breaker, coalescing, bounded queue)
// is venue-agnostic.
type RESTKlineFetcher interface {
	FetchKline(ctx context.Context, symbol, interval string, bucketStart int64) (Kline, error)
}

// RESTKlineGateway is the governed front door to the REST kline fallback
// tier (spec.md §4.3): off by default, and when enabled must be
// circuit-broken on 429, bounded to K concurrent in-flight requests, and
// coalesced to one outstanding request per (symbol, interval, bucketStart).
type RESTKlineGateway struct {
	fetcher RESTKlineFetcher

	circuitWindow time.Duration
	maxInFlight   int

	mu           sync.Mutex
	last429      time.Time
	inFlight     map[string]chan rkResult
	sem          chan struct{}
}

type rkResult struct {
	kline Kline
	err   error
}

func NewRESTKlineGateway(fetcher RESTKlineFetcher, circuitWindow time.Duration, maxInFlight, queueCapacity int) *RESTKlineGateway {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &RESTKlineGateway{
		fetcher:       fetcher,
		circuitWindow: circuitWindow,
		maxInFlight:   maxInFlight,
		inFlight:      make(map[string]chan rkResult),
		sem:           make(chan struct{}, maxInFlight),
	}
}

// circuitOpen reports whether a 429 was observed within the circuit window.
func (g *RESTKlineGateway) circuitOpen(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.last429.IsZero() && now.Sub(g.last429) < g.circuitWindow
}

func (g *RESTKlineGateway) recordRateLimited(now time.Time) {
	g.mu.Lock()
	g.last429 = now
	g.mu.Unlock()
}

// Fetch coalesces concurrent callers for the same key into one in-flight
// REST call, and rejects immediately if the circuit is open or the bounded
// queue of in-flight requests is full.
func (g *RESTKlineGateway) Fetch(ctx context.Context, symbol, interval string, bucketStart int64) (Kline, error, bool) {
	now := time.Now()
	if g.circuitOpen(now) {
		return Kline{}, nil, false
	}

	key := symbol + "|" + interval + "|" + strconv.FormatInt(bucketStart, 10)

	g.mu.Lock()
	if ch, ok := g.inFlight[key]; ok {
		g.mu.Unlock()
		res := <-ch
		return res.kline, res.err, true
	}
	ch := make(chan rkResult, 1)
	g.inFlight[key] = ch
	g.mu.Unlock()

	select {
	case g.sem <- struct{}{}:
	default:
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
		close(ch)
		return Kline{}, nil, false // queue saturated, refuse rather than block
	}

	go func() {
		defer func() {
			<-g.sem
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		}()
		k, err := g.fetcher.FetchKline(ctx, symbol, interval, bucketStart)
		if isRateLimited(err) {
			g.recordRateLimited(time.Now())
		}
		ch <- rkResult{kline: k, err: err}
		close(ch)
	}()

	res := <-ch
	return res.kline, res.err, true
}

func isRateLimited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}
