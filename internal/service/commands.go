package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"autobay/internal/domain"
	"autobay/internal/event"
	"autobay/internal/infra"

	"github.com/shopspring/decimal"
)

const historyLimit = 10

// BookSnapshotter exposes the latest read-only order book published by the controller.
type BookSnapshotter interface {
	Snapshot() *domain.OrderBook
}

// MarketReader reads price and free balances.
type MarketReader interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Reply is the answer to one operator message.
type Reply struct {
	Text string
	HTML bool
}

// Router turns operator messages into queued commands or direct answers.
// Mutating commands only enqueue; queries read the published snapshot.
type Router struct {
	commands *event.Queue[event.Command]
	book     BookSnapshotter
	market   MarketReader
	journal  domain.TradeJournal
	pair     domain.Market
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewRouter creates a router. journal and metrics may be nil.
func NewRouter(commands *event.Queue[event.Command], book BookSnapshotter, market MarketReader,
	journal domain.TradeJournal, pair domain.Market, metrics *infra.Metrics) *Router {
	return &Router{
		commands: commands,
		book:     book,
		market:   market,
		journal:  journal,
		pair:     pair,
		metrics:  metrics,
		logger:   slog.Default().With("module", "router"),
	}
}

// Handle processes one message. ok is false for text that is not a command.
func (r *Router) Handle(ctx context.Context, text string) (reply Reply, ok bool) {
	if cmd, isCmd := event.ParseCommand(text); isCmd {
		r.metrics.RecordCommand(string(cmd))
		r.commands.Push(cmd)
		r.logger.Info("Command queued", slog.String("command", string(cmd)))
		return Reply{Text: ackText(cmd)}, true
	}

	word := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(text), "/"))
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}

	switch word {
	case "stats":
		r.metrics.RecordCommand(word)
		return Reply{Text: r.stats()}, true
	case "balance":
		r.metrics.RecordCommand(word)
		return r.balance(ctx), true
	case "price":
		r.metrics.RecordCommand(word)
		return r.price(ctx), true
	case "history":
		r.metrics.RecordCommand(word)
		return Reply{Text: r.history()}, true
	case "help":
		return Reply{Text: helpText}, true
	}
	return Reply{}, false
}

func ackText(cmd event.Command) string {
	switch cmd {
	case event.CommandStop:
		return "[STOP] Stopping trading..."
	case event.CommandStart:
		return "[START] Starting trading..."
	default:
		return "[BUY] Request to create a 'bay' order accepted."
	}
}

const helpText = `/start - resume autobay replenishment
/stop - stop replenishment, demote the autobay order
/buy - create a standing 'bay' order
/stats - executed orders and profit
/balance - balances, frozen amounts and PnL
/price - current price
/history - last finished orders`

func (r *Router) stats() string {
	book := r.book.Snapshot()
	state := "running"
	if !book.TradingEnabled {
		state = "stopped"
	}
	return fmt.Sprintf("[STATS] Statistics:\nExecuted orders: %d\nTotal profit: %s %s\nActive orders: %d\nTrading: %s",
		book.ExecutedCount,
		book.TotalProfit.StringFixed(6), r.pair.Quote,
		len(book.ActiveOrders),
		state,
	)
}

// BalanceReport is the data behind /balance.
type BalanceReport struct {
	FreeQuote   decimal.Decimal
	FrozenQuote decimal.Decimal
	FreeBase    decimal.Decimal
	FrozenBase  decimal.Decimal
	Orders      int
	MarketValue decimal.Decimal
	PnLPercent  decimal.Decimal
}

// NewBalanceReport computes frozen amounts, market value and PnL of book at price.
// PnL% = ((marketValue + freeQuote) / (frozenQuote + freeQuote - totalProfit) - 1) * 100.
func NewBalanceReport(book *domain.OrderBook, price, freeQuote, freeBase decimal.Decimal) BalanceReport {
	rep := BalanceReport{
		FreeQuote:   freeQuote,
		FrozenQuote: book.FrozenQuote(),
		FreeBase:    freeBase,
		FrozenBase:  book.FrozenBase(),
		Orders:      len(book.ActiveOrders),
	}
	rep.MarketValue = rep.FrozenBase.Mul(price)

	invested := rep.FrozenQuote.Add(freeQuote).Sub(book.TotalProfit)
	if invested.IsPositive() {
		rep.PnLPercent = rep.MarketValue.Add(freeQuote).Div(invested).
			Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	}
	return rep
}

func (r *Router) balance(ctx context.Context) Reply {
	price, err := r.market.Price(ctx, r.pair.Symbol())
	if err != nil {
		r.logger.Error("Balance query failed", slog.Any("error", err))
		return Reply{Text: "[ERROR] Failed to fetch balance."}
	}
	freeQuote, err := r.market.Balance(ctx, r.pair.Quote)
	if err != nil {
		r.logger.Error("Balance query failed", slog.Any("error", err))
		return Reply{Text: "[ERROR] Failed to fetch balance."}
	}
	freeBase, err := r.market.Balance(ctx, r.pair.Base)
	if err != nil {
		r.logger.Error("Balance query failed", slog.Any("error", err))
		return Reply{Text: "[ERROR] Failed to fetch balance."}
	}

	rep := NewBalanceReport(r.book.Snapshot(), price, freeQuote, freeBase)
	q, b := r.pair.Quote, r.pair.Base

	var sb strings.Builder
	sb.WriteString("<u>BALANCE</u>\n\n")
	fmt.Fprintf(&sb, "<b>%s</b>\nFree: %s %s\nFrozen: %s %s\n\n", q, rep.FreeQuote.StringFixed(2), q, rep.FrozenQuote.StringFixed(2), q)
	fmt.Fprintf(&sb, "<b>%s</b>\nFree: %s %s\nFrozen: %s %s\n\n", b, rep.FreeBase.StringFixed(2), b, rep.FrozenBase.StringFixed(2), b)
	fmt.Fprintf(&sb, "<b>Orders:</b>\nCount: %d\nMarket value: %s %s\n\n", rep.Orders, rep.MarketValue.StringFixed(2), q)
	fmt.Fprintf(&sb, "PnL: %s%%", rep.PnLPercent.StringFixed(2))
	return Reply{Text: sb.String(), HTML: true}
}

func (r *Router) price(ctx context.Context) Reply {
	price, err := r.market.Price(ctx, r.pair.Symbol())
	if err != nil {
		r.logger.Error("Price query failed", slog.Any("error", err))
		return Reply{Text: "[ERROR] Failed to fetch the current price."}
	}
	return Reply{Text: fmt.Sprintf("[PRICE] Current %s price: %s %s", r.pair.Base, price.StringFixed(6), r.pair.Quote)}
}

func (r *Router) history() string {
	if r.journal == nil {
		return "[HISTORY] Journal disabled."
	}
	recs, err := r.journal.Recent(historyLimit)
	if err != nil {
		r.logger.Error("History query failed", slog.Any("error", err))
		return "[ERROR] Failed to read history."
	}
	if len(recs) == 0 {
		return "[HISTORY] No finished orders yet."
	}

	var sb strings.Builder
	sb.WriteString("[HISTORY] Last finished orders:")
	for _, rec := range recs {
		fmt.Fprintf(&sb, "\n%s %s %s: %s @ %s -> %s, profit %s",
			rec.CreatedAt.Format("01-02 15:04"),
			rec.Status, rec.Role,
			rec.Amount.StringFixed(2),
			rec.BuyPrice.StringFixed(6),
			rec.Price.StringFixed(6),
			rec.Profit.StringFixed(6),
		)
	}
	return sb.String()
}
