// Package api implements the internal operator/debug HTTP surface:
// health/readiness, Prometheus metrics, and cache-inspection/force-refresh
// endpoints gated by JWT auth plus a TOTP second factor on anything
// mutating, adapted from the teacher's gin-based tactic API
// (api/tactics.go) with the strategy-tactic CRUD replaced by the
// read-mostly operator surface this engine actually needs.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"ocengine/internal/cache"
	"ocengine/internal/metrics"
)

// ReadinessSource reports whether the async components this API inspects
// are connected/healthy. cmd/engine wires *ingress.Client as the only
// implementation; cache freshness is not part of readiness.
type ReadinessSource interface {
	Ready() bool
}

// Server is the gin-backed debug/operator API.
type Server struct {
	engine *gin.Engine

	symbolFilters *cache.SymbolFilterCache
	strategies    *cache.StrategyCache
	openPrices    *cache.OpenPriceCache

	readiness  []ReadinessSource
	jwtSecret  []byte
	totpSecret string
}

// New builds the Server and registers every route. jwtSecret signs/verifies
// operator session tokens; totpSecret (base32) gates mutating endpoints.
func New(symbolFilters *cache.SymbolFilterCache, strategies *cache.StrategyCache, openPrices *cache.OpenPriceCache, jwtSecret, totpSecret string, readiness ...ReadinessSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:        gin.New(),
		symbolFilters: symbolFilters,
		strategies:    strategies,
		openPrices:    openPrices,
		readiness:     readiness,
		jwtSecret:     []byte(jwtSecret),
		totpSecret:    totpSecret,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/readyz", s.handleReadyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	debug := s.engine.Group("/debug", s.authMiddleware)
	debug.GET("/caches", s.handleGetCaches)
	debug.POST("/caches/strategies/refresh", s.totpMiddleware, s.handleRefreshStrategies)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	for _, r := range s.readiness {
		if !r.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleGetCaches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol_filters": s.symbolFilters.Len(),
		"strategies":     s.strategies.Len(),
		"open_prices":    s.openPrices.Len(),
	})
}

func (s *Server) handleRefreshStrategies(c *gin.Context) {
	if err := s.strategies.Refresh(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategies refreshed"})
}

// operatorClaims is the JWT payload for operator session tokens.
type operatorClaims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator"`
}

// IssueToken mints a short-lived operator session token; used by an
// out-of-band login flow, not exposed as an HTTP endpoint here.
func (s *Server) IssueToken(operator string, ttl time.Duration) (string, error) {
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
		Operator:         operator,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.jwtSecret)
}

func (s *Server) authMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	raw := header[len(prefix):]

	claims := &operatorClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !tok.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set("operator", claims.Operator)
	c.Next()
}

func (s *Server) totpMiddleware(c *gin.Context) {
	code := c.GetHeader("X-TOTP-Code")
	if code == "" || s.totpSecret == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing totp code"})
		return
	}
	ok, err := totp.ValidateCustom(code, s.totpSecret, time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid totp code"})
		return
	}
	c.Next()
}
