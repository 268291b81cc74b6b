package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autobay/internal/domain"
	"autobay/internal/infra"

	"github.com/sourcegraph/conc/pool"
)

// Notifier enqueues operator messages without blocking.
type Notifier interface {
	Notify(text string)
}

// Reconciler polls the remote status of every active order and folds the
// outcomes into the book.
type Reconciler struct {
	exchange domain.Exchange
	pair     domain.Market
	workers  int
	delay    time.Duration
	notifier Notifier
	journal  domain.TradeJournal
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewReconciler creates a reconciler polling with at most workers concurrent
// lookups, each preceded by delay. journal and metrics may be nil.
func NewReconciler(exchange domain.Exchange, pair domain.Market, workers int, delay time.Duration,
	notifier Notifier, journal domain.TradeJournal, metrics *infra.Metrics) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		exchange: exchange,
		pair:     pair,
		workers:  workers,
		delay:    delay,
		notifier: notifier,
		journal:  journal,
		metrics:  metrics,
		logger:   slog.Default().With("module", "reconciler"),
	}
}

type pollResult struct {
	status domain.OrderStatus
	err    error
}

// Reconcile removes closed and canceled orders from book, updating counters
// for closed ones. Orders whose lookup failed stay active. It reports whether
// the autobay order was among the finished ones.
func (r *Reconciler) Reconcile(ctx context.Context, book *domain.OrderBook) (autobayFinished bool) {
	if len(book.ActiveOrders) == 0 {
		return false
	}

	results := r.poll(ctx, book.ActiveOrders)

	still := make([]domain.Order, 0, len(book.ActiveOrders))
	for i, o := range book.ActiveOrders {
		res := results[i]
		if res.err != nil {
			r.logger.Error("[ERROR] Order status check failed",
				slog.String("oid", o.ID),
				slog.Any("error", res.err),
			)
			r.metrics.RecordExchangeError("order_status", domain.KindOf(res.err).String())
			still = append(still, o)
			continue
		}

		switch res.status {
		case domain.OrderStatusClosed:
			profit := book.RecordClosed(o)
			r.logger.Info("[SUCCESS] Order executed",
				slog.String("oid", o.ID),
				slog.String("type", string(o.Type)),
				slog.String("amount", o.Amount.String()),
				slog.String("buy_price", o.BuyPrice.String()),
				slog.String("sell_price", o.Price.String()),
				slog.String("profit", profit.String()),
			)
			r.notifier.Notify(fmt.Sprintf("✅ Order executed!\nType: %s\nAmount: %s %s\nBuy: %s %s\nSell: %s %s\nProfit: %s %s",
				o.Type,
				o.Amount.StringFixed(6), r.pair.Base,
				o.BuyPrice.StringFixed(6), r.pair.Quote,
				o.Price.StringFixed(6), r.pair.Quote,
				profit.StringFixed(6), r.pair.Quote,
			))
			r.finish(o, res.status)
			autobayFinished = autobayFinished || o.IsAutobay()
		case domain.OrderStatusCanceled:
			r.logger.Info("[CANCEL] Order canceled", slog.String("oid", o.ID))
			r.notifier.Notify(fmt.Sprintf("[CANCEL] Order %s canceled.", o.ID))
			r.finish(o, res.status)
			autobayFinished = autobayFinished || o.IsAutobay()
		default:
			still = append(still, o)
		}
	}

	book.ActiveOrders = still
	book.Sort()
	return autobayFinished
}

// poll looks up every order with bounded parallelism. results[i] belongs to orders[i].
func (r *Reconciler) poll(ctx context.Context, orders []domain.Order) []pollResult {
	results := make([]pollResult, len(orders))
	symbol := r.pair.Symbol()

	p := pool.New().WithMaxGoroutines(r.workers)
	for idx, order := range orders {
		i, id := idx, order.ID
		p.Go(func() {
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = pollResult{err: fmt.Errorf("status lookup panic: %v", rec)}
				}
			}()
			if err := infra.Sleep(ctx, r.delay); err != nil {
				results[i] = pollResult{err: err}
				return
			}
			status, err := r.exchange.OrderStatus(ctx, id, symbol)
			results[i] = pollResult{status: status, err: err}
		})
	}
	p.Wait()
	return results
}

func (r *Reconciler) finish(o domain.Order, status domain.OrderStatus) {
	r.metrics.RecordOrderFinished(string(status))
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(domain.NewTradeRecord(r.pair.Symbol(), o, status)); err != nil {
		r.logger.Error("Failed to journal order", slog.String("oid", o.ID), slog.Any("error", err))
	}
}
