package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ocengine/internal/cache"
	"ocengine/internal/model"
)

type fakeStrategySource struct{}

func (fakeStrategySource) ListActiveStrategies() ([]model.Strategy, error) { return nil, nil }

func newTestServer() *Server {
	sf := cache.NewSymbolFilterCache()
	sc := cache.NewStrategyCache(fakeStrategySource{}, time.Minute)
	oc := cache.NewOpenPriceCache(cache.OpenPriceCacheConfig{Size: 10, TTL: time.Minute})
	return New(sf, sc, oc, "test-secret", "")
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDebugRouteRejectsMissingToken(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/caches", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDebugRouteAcceptsValidToken(t *testing.T) {
	s := newTestServer()
	tok, err := s.IssueToken("operator1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/caches", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpointServesPlaintext(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
