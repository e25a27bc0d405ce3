// Package statushttp serves the read-only operator API: risk metrics, open
// positions, connection health and the latest reconciliation report.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"kestrel/internal/conn"
	"kestrel/internal/logger"
	"kestrel/internal/risk"
	"kestrel/internal/state"
	"kestrel/internal/store"

	"github.com/gin-gonic/gin"
)

// StatusProvider is implemented by the application core.
type StatusProvider interface {
	RiskMetrics() risk.Metrics
	OpenPositions() []risk.Position
	ConnectionStats() conn.Stats
	LastReconciliation() *state.ReconciliationResult
	TradingBlocked() (bool, string)
}

// Journal is the optional trade-history surface. Nil disables its routes.
type Journal interface {
	RecentTrades(limit int) ([]store.TradeRecord, error)
	EquityHistory(since time.Time, limit int) ([]store.EquityPoint, error)
}

type ServerConfig struct {
	Addr     string
	Provider StatusProvider
	Journal  Journal
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("status http server requires a provider")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{provider: cfg.Provider, journal: cfg.Journal}
	api := router.Group("/api")
	api.GET("/risk", h.handleRisk)
	api.GET("/positions", h.handlePositions)
	api.GET("/connection", h.handleConnection)
	api.GET("/reconciliation", h.handleReconciliation)
	if cfg.Journal != nil {
		api.GET("/trades", h.handleTrades)
		api.GET("/equity", h.handleEquity)
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

type handlers struct {
	provider StatusProvider
	journal  Journal
}

func (h *handlers) handleRisk(c *gin.Context) {
	blocked, reason := h.provider.TradingBlocked()
	c.JSON(http.StatusOK, gin.H{
		"metrics":         h.provider.RiskMetrics(),
		"trading_blocked": blocked,
		"blocked_reason":  reason,
	})
}

func (h *handlers) handlePositions(c *gin.Context) {
	positions := h.provider.OpenPositions()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(positions),
		"positions": positions,
	})
}

func (h *handlers) handleConnection(c *gin.Context) {
	c.JSON(http.StatusOK, h.provider.ConnectionStats())
}

func (h *handlers) handleReconciliation(c *gin.Context) {
	result := h.provider.LastReconciliation()
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"checked": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked":          true,
		"fully_reconciled": result.IsFullyReconciled(),
		"result":           result,
	})
}

func (h *handlers) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	trades, err := h.journal.RecentTrades(limit)
	if err != nil {
		logger.Errorf("[api] trades query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (h *handlers) handleEquity(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if hours <= 0 {
		hours = 24
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	points, err := h.journal.EquityHistory(time.Now().Add(-time.Duration(hours)*time.Hour), limit)
	if err != nil {
		logger.Errorf("[api] equity query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, c.Writer.Status(), client, time.Since(start))
	}
}
