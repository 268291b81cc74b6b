package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autobay/internal/domain"
	"autobay/internal/infra"
	"autobay/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatorConfig holds the fixed order parameters.
type CreatorConfig struct {
	OrderSize      decimal.Decimal // quote spent per buy
	ProfitMargin   decimal.Decimal // 0.005 = sell 0.5% above the fill
	Attempts       int             // bounded attempts for rate-limited submissions
	PricePrecision int32           // sell price decimals, 0 keeps full precision
}

// Creator places a market buy followed by a limit sell and records the sell.
type Creator struct {
	cfg      CreatorConfig
	exchange domain.Exchange
	market   service.MarketReader
	pair     domain.Market
	funds    *FundsAlert
	notifier Notifier
	metrics  *infra.Metrics

	// network retries transient failures of a single submission indefinitely.
	network infra.Backoff
	// rateLimit paces retries after the venue rejects for rate limits.
	rateLimit infra.Backoff

	newID  func() string
	logger *slog.Logger
}

// NewCreator creates an order creator. metrics may be nil.
func NewCreator(cfg CreatorConfig, exchange domain.Exchange, market service.MarketReader, pair domain.Market,
	funds *FundsAlert, notifier Notifier, network, rateLimit infra.Backoff, metrics *infra.Metrics) *Creator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Creator{
		cfg:       cfg,
		exchange:  exchange,
		market:    market,
		pair:      pair,
		funds:     funds,
		notifier:  notifier,
		metrics:   metrics,
		network:   network,
		rateLimit: rateLimit,
		newID:     uuid.NewString,
		logger:    slog.Default().With("module", "creator"),
	}
}

// RateLimitBackoff is the pacing between rate-limited submissions: 1s, 2s, 4s.
func RateLimitBackoff() infra.Backoff {
	return infra.Backoff{
		Base:      500 * time.Millisecond,
		Max:       4 * time.Second,
		Retryable: func(error) bool { return false },
	}
}

// CheckFunds reads the free quote balance and applies the edge-triggered
// insufficient-funds notification. It reports whether a new order can be paid.
func (c *Creator) CheckFunds(ctx context.Context) (bool, error) {
	balance, err := c.market.Balance(ctx, c.pair.Quote)
	if err != nil {
		return false, err
	}
	if balance.LessThan(c.cfg.OrderSize) {
		if c.funds.Insufficient() {
			msg := fmt.Sprintf("[ERROR] Insufficient funds (%s): %s %s", c.pair.Quote, balance.StringFixed(2), c.pair.Quote)
			c.logger.Warn(msg)
			c.notifier.Notify(msg)
		}
		return false, nil
	}
	c.funds.Sufficient()
	return true, nil
}

// Create buys OrderSize worth of the base asset and places the paired sell
// with the given role. On success the sell is added to book and returned.
func (c *Creator) Create(ctx context.Context, book *domain.OrderBook, role domain.OrderType) (domain.Order, bool) {
	symbol := c.pair.Symbol()

	price, err := c.market.Price(ctx, symbol)
	if err != nil {
		c.logger.Error("Price read aborted", slog.Any("error", err))
		return domain.Order{}, false
	}
	ok, err := c.CheckFunds(ctx)
	if err != nil {
		c.logger.Error("Balance read aborted", slog.Any("error", err))
		return domain.Order{}, false
	}
	if !ok {
		return domain.Order{}, false
	}

	// 1. Market buy
	amount := c.cfg.OrderSize.Div(price)
	buyID := c.newID()
	fill, err := submit(ctx, c, "market_buy", func(ctx context.Context) (domain.BuyFill, error) {
		return c.exchange.MarketBuy(ctx, symbol, amount, buyID)
	})
	if err != nil {
		return domain.Order{}, false
	}
	c.logger.Info("[BUY] Bought",
		slog.String("oid", fill.ID),
		slog.String("amount", fill.FilledAmount.String()),
		slog.String("price", fill.AvgPrice.String()),
	)

	// 2. Limit sell of the full fill
	sellPrice := fill.AvgPrice.Mul(decimal.NewFromInt(1).Add(c.cfg.ProfitMargin))
	if c.cfg.PricePrecision > 0 {
		sellPrice = sellPrice.Truncate(c.cfg.PricePrecision)
	}
	sellID := c.newID()
	placed, err := submit(ctx, c, "limit_sell", func(ctx context.Context) (domain.PlacedOrder, error) {
		return c.exchange.LimitSell(ctx, symbol, fill.FilledAmount, sellPrice, sellID)
	})
	if err != nil {
		msg := fmt.Sprintf("[ERROR] Failed to place the sell order. Bought %s %s at %s %s, manual action required.",
			fill.FilledAmount.StringFixed(6), c.pair.Base, fill.AvgPrice.StringFixed(6), c.pair.Quote)
		c.logger.Error(msg, slog.String("buy_oid", fill.ID), slog.Any("error", err))
		c.notifier.Notify(msg)
		return domain.Order{}, false
	}

	// 3. Track the sell
	order := domain.Order{
		ID:       placed.ID,
		Amount:   fill.FilledAmount,
		Price:    sellPrice,
		BuyPrice: fill.AvgPrice,
		Type:     role,
	}
	book.Add(order)
	c.metrics.RecordOrderCreated(string(role))

	c.notifier.Notify(fmt.Sprintf("[BUY] BOUGHT\n%s %s at %s %s\nSpent: %s %s\n[SELL] PLACED (%s)\n%s %s at %s %s",
		fill.FilledAmount.StringFixed(6), c.pair.Base, fill.AvgPrice.StringFixed(6), c.pair.Quote,
		order.Cost().StringFixed(2), c.pair.Quote,
		role,
		fill.FilledAmount.StringFixed(6), c.pair.Base, sellPrice.StringFixed(6), c.pair.Quote,
	))
	return order, true
}

// submit runs one order submission. Transient network failures are retried
// without limit; rate limits are retried up to the attempt budget; every other
// failure aborts at once and is notified.
func submit[T any](ctx context.Context, c *Creator, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	seq := c.rateLimit.Sequence()

	for attempt := 1; ; attempt++ {
		v, err := infra.Retry(ctx, c.network, op, fn)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		kind := domain.KindOf(err)
		c.metrics.RecordExchangeError(op, kind.String())

		switch kind {
		case domain.KindRateLimit:
			if attempt >= c.cfg.Attempts {
				msg := fmt.Sprintf("[ERROR] %s: rate limit persisted after %d attempts", op, attempt)
				c.logger.Error(msg, slog.Any("error", err))
				c.notifier.Notify(msg)
				return zero, err
			}
			delay := seq.NextBackOff()
			c.logger.Warn("[RATE] Rate limit exceeded, waiting",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			c.metrics.RecordRetry(op)
			if err := infra.Sleep(ctx, delay); err != nil {
				return zero, err
			}
		case domain.KindInsufficientFunds:
			c.logger.Error("[ERROR] Insufficient funds", slog.String("op", op), slog.Any("error", err))
			if c.funds.Insufficient() {
				c.notifier.Notify(fmt.Sprintf("[ERROR] Insufficient funds for %s", opLabel(op)))
			}
			return zero, err
		case domain.KindOrderNotFound:
			c.logger.Error("[ERROR] Order not found", slog.String("op", op), slog.Any("error", err))
			c.notifier.Notify("[ERROR] Order not found")
			return zero, err
		default:
			c.logger.Error("[ERROR] Order submission failed", slog.String("op", op), slog.Any("error", err))
			c.notifier.Notify(fmt.Sprintf("[ERROR] %s error: %v", opLabel(op), err))
			return zero, err
		}
	}
}

func opLabel(op string) string {
	switch op {
	case "market_buy":
		return "buy"
	case "limit_sell":
		return "sell"
	}
	return op
}
