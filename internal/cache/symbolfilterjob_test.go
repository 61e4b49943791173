package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"ocengine/internal/model"
)

type fakeExchangeInfo struct {
	name    string
	filters []model.SymbolFilter
	err     error
}

func (f *fakeExchangeInfo) Name() string { return f.name }

func (f *fakeExchangeInfo) GetExchangeInfo(ctx context.Context) ([]model.SymbolFilter, error) {
	return f.filters, f.err
}

type fakeFilterStore struct {
	upserted []model.SymbolFilter
}

func (s *fakeFilterStore) BulkUpsertSymbolFilters(filters []model.SymbolFilter) error {
	s.upserted = append(s.upserted, filters...)
	return nil
}

func TestSymbolFilterJobRefreshAllPopulatesCacheAndStore(t *testing.T) {
	c := NewSymbolFilterCache()
	st := &fakeFilterStore{}
	venue := &fakeExchangeInfo{name: "binance", filters: []model.SymbolFilter{
		{Venue: "binance", Symbol: "BTCUSDT", TickSize: 0.1, StepSize: 0.001, MinNotional: 5},
	}}

	job := NewSymbolFilterJob(c, st, time.Minute, venue)
	job.RefreshAll(context.Background())

	if _, ok := c.Get("binance", "BTCUSDT"); !ok {
		t.Fatal("expected BTCUSDT filter in cache after refresh")
	}
	if len(st.upserted) != 1 {
		t.Fatalf("expected 1 filter persisted, got %d", len(st.upserted))
	}
}

func TestSymbolFilterJobSkipsVenueOnError(t *testing.T) {
	c := NewSymbolFilterCache()
	st := &fakeFilterStore{}
	bad := &fakeExchangeInfo{name: "bybit", err: errors.New("rate limited")}
	good := &fakeExchangeInfo{name: "binance", filters: []model.SymbolFilter{
		{Venue: "binance", Symbol: "ETHUSDT", TickSize: 0.01, StepSize: 0.01, MinNotional: 5},
	}}

	job := NewSymbolFilterJob(c, st, time.Minute, bad, good)
	job.RefreshAll(context.Background())

	if _, ok := c.Get("bybit", "ANY"); ok {
		t.Fatal("expected no entries written for the failing venue")
	}
	if _, ok := c.Get("binance", "ETHUSDT"); !ok {
		t.Fatal("expected the succeeding venue to still populate the cache")
	}
}
