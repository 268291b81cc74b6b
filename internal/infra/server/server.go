package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"autobay/internal/domain"
	"autobay/internal/infra"
	"autobay/internal/infra/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshotter exposes the latest published order book.
type Snapshotter interface {
	Snapshot() *domain.OrderBook
}

// LastPricer returns the cached price without touching the exchange.
type LastPricer interface {
	Last(symbol string) (domain.Ticker, bool)
}

// Summarizer counts finished trades.
type Summarizer interface {
	Summarize() (storage.Summary, error)
}

// Sources are the read models behind the endpoints. Only Book is required.
type Sources struct {
	Book    Snapshotter
	Prices  LastPricer
	Journal Summarizer
	Metrics *infra.Metrics
}

type orderView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
	BuyPrice string `json:"buy_price"`
}

type statsView struct {
	Symbol         string       `json:"symbol"`
	TradingEnabled bool         `json:"trading_enabled"`
	ExecutedCount  int          `json:"executed_orders_count"`
	TotalProfit    string       `json:"total_profit"`
	ActiveOrders   []orderView  `json:"active_orders"`
	LastPrice      string       `json:"last_price,omitempty"`
	Journal        *journalView `json:"journal,omitempty"`
}

type journalView struct {
	Closed   int64 `json:"closed"`
	Canceled int64 `json:"canceled"`
}

// Server is the read-only status surface.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the router. /metrics is mounted only when src.Metrics is set.
func New(addr, symbol string, src Sources) *Server {
	gin.SetMode(gin.ReleaseMode)
	logger := slog.Default().With("module", "http")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		snap := src.Book.Snapshot()
		if snap == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state not loaded"})
			return
		}
		view := newStatsView(symbol, snap)
		if src.Prices != nil {
			if t, ok := src.Prices.Last(symbol); ok {
				view.LastPrice = t.Price.String()
			}
		}
		if src.Journal != nil {
			if sum, err := src.Journal.Summarize(); err != nil {
				logger.Warn("Journal summary unavailable", slog.Any("error", err))
			} else {
				view.Journal = &journalView{Closed: sum.Closed, Canceled: sum.Canceled}
			}
		}
		c.JSON(http.StatusOK, view)
	})
	if src.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(src.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	return &Server{
		srv:    &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Handler returns the HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func newStatsView(symbol string, b *domain.OrderBook) statsView {
	v := statsView{
		Symbol:         symbol,
		TradingEnabled: b.TradingEnabled,
		ExecutedCount:  b.ExecutedCount,
		TotalProfit:    b.TotalProfit.String(),
		ActiveOrders:   make([]orderView, 0, len(b.ActiveOrders)),
	}
	for _, o := range b.ActiveOrders {
		v.ActiveOrders = append(v.ActiveOrders, orderView{
			ID:       o.ID,
			Type:     string(o.Type),
			Amount:   o.Amount.String(),
			Price:    o.Price.String(),
			BuyPrice: o.BuyPrice.String(),
		})
	}
	return v
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
