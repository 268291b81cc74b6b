package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"autobay/internal/domain"
	"autobay/internal/event"
	"autobay/internal/infra"
	"autobay/internal/service"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ControllerConfig holds the loop parameters.
type ControllerConfig struct {
	Pair           domain.Market
	DropThreshold  decimal.Decimal
	ReplenishDelay time.Duration
	TickInterval   time.Duration
	DumpPath       string
}

// Controller is the single goroutine that owns the order book.
// Everything else talks to it through the command queue and reads the
// snapshot it publishes after every tick.
type Controller struct {
	cfg ControllerConfig

	book       *domain.OrderBook
	store      domain.StateStore
	reconciler *Reconciler
	creator    *Creator
	trigger    domain.DropTrigger
	market     service.MarketReader
	commands   *event.Queue[event.Command]
	notifier   Notifier
	funds      *FundsAlert
	metrics    *infra.Metrics

	snapshot atomic.Pointer[domain.OrderBook]
	wait     func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewController wires a controller. funds must be the alert shared with creator.
func NewController(cfg ControllerConfig, store domain.StateStore, reconciler *Reconciler, creator *Creator,
	market service.MarketReader, commands *event.Queue[event.Command], notifier Notifier,
	funds *FundsAlert, metrics *infra.Metrics) *Controller {
	if cfg.DumpPath == "" {
		cfg.DumpPath = "panic_dump.json"
	}
	c := &Controller{
		cfg:        cfg,
		book:       domain.NewOrderBook(),
		store:      store,
		reconciler: reconciler,
		creator:    creator,
		trigger:    domain.NewDropTrigger(cfg.DropThreshold),
		market:     market,
		commands:   commands,
		notifier:   notifier,
		funds:      funds,
		metrics:    metrics,
		wait:       infra.Sleep,
		logger:     slog.Default().With("module", "controller"),
	}
	c.publish()
	return c
}

// Snapshot returns the latest published book. Callers must not modify it.
func (c *Controller) Snapshot() *domain.OrderBook {
	return c.snapshot.Load()
}

// Run restores state, performs the startup check and ticks until ctx is done.
// A panic inside the loop dumps the book and is returned as an error.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			c.DumpState(c.cfg.DumpPath)
			err = fmt.Errorf("HALTED: %v", r)
		}
	}()

	c.logger.Info("🚀 Controller started", slog.String("symbol", c.cfg.Pair.Symbol()))

	// In-flight exchange calls of a tick are not aborted by shutdown.
	work := context.WithoutCancel(ctx)

	c.Start(work)

	for {
		if err := c.wait(ctx, c.cfg.TickInterval); err != nil {
			break
		}
		c.tick(ctx, work)
	}

	c.logger.Info("Controller stopping, saving state...")
	c.persist(work)
	return nil
}

// Start loads the persisted book and runs the startup check.
func (c *Controller) Start(ctx context.Context) {
	c.book = c.store.Load(ctx)
	c.logger.Info("[LOAD] State loaded",
		slog.Int("active", len(c.book.ActiveOrders)),
		slog.Bool("trading_enabled", c.book.TradingEnabled),
	)
	if !c.book.TradingEnabled {
		if demoted := c.book.DemoteAutobay(); len(demoted) > 0 {
			c.logger.Warn("[LOAD] Trading is stopped, demoted stored 'autobay' orders", slog.Int("count", len(demoted)))
		}
	}
	c.initialCheck(ctx)
	c.persist(ctx)
	c.publish()
}

// Tick runs one iteration: at most one command, reconciliation, rotation,
// persistence, replenishment and the price-drop check.
func (c *Controller) Tick(ctx context.Context) {
	c.tick(ctx, ctx)
}

// tick runs exchange calls on ctx. Waits and the decision to open new
// positions observe shutdown, which only ends the outer ctx.
func (c *Controller) tick(shutdown, ctx context.Context) {
	if cmd, ok := c.commands.TryPop(); ok {
		c.handleCommand(ctx, cmd)
	}

	autobayFinished := c.reconciler.Reconcile(ctx, c.book)
	c.book.Sort()
	if c.book.TradingEnabled {
		Rotate(c.book)
	}
	c.persist(ctx)

	if autobayFinished && c.book.TradingEnabled {
		c.replenish(shutdown, ctx)
	}

	if c.book.TradingEnabled && shutdown.Err() == nil {
		c.checkPriceDrop(ctx)
	}

	c.publish()
}

func (c *Controller) handleCommand(ctx context.Context, cmd event.Command) {
	c.logger.Info("Command received", slog.String("command", string(cmd)))

	switch cmd {
	case event.CommandStop:
		c.book.TradingEnabled = false
		switch demoted := c.book.DemoteAutobay(); len(demoted) {
		case 0:
			c.notifier.Notify("[STOP] Trading stopped. No 'autobay' orders.")
		case 1:
			c.notifier.Notify(fmt.Sprintf("[STOP] Trading stopped. Order %s demoted to 'bay'.", demoted[0].ID))
		default:
			ids := make([]string, len(demoted))
			for i, o := range demoted {
				ids[i] = o.ID
			}
			c.notifier.Notify(fmt.Sprintf("[STOP] Trading stopped. Orders %s demoted to 'bay'.", strings.Join(ids, ", ")))
		}
		c.persist(ctx)

	case event.CommandStart:
		c.book.TradingEnabled = true
		c.funds.Reset()
		c.initialCheck(ctx)
		c.persist(ctx)

	case event.CommandBuy:
		c.creator.Create(ctx, c.book, domain.OrderTypeBay)
		c.persist(ctx)
	}
	c.publish()
}

// initialCheck reconciles as on startup: an empty book gets a fresh autobay
// order while trading, and nothing is replenished on closure.
func (c *Controller) initialCheck(ctx context.Context) {
	c.notifier.Notify("[CHECK] Checking previously created orders...")

	c.reconciler.Reconcile(ctx, c.book)

	if len(c.book.ActiveOrders) == 0 {
		if c.book.TradingEnabled {
			c.logger.Info("[START] No orders, creating 'autobay'")
			c.creator.Create(ctx, c.book, domain.OrderTypeAutobay)
		} else {
			c.logger.Info("[START] No orders and trading is stopped, not creating 'autobay'")
			c.notifier.Notify("[START] No active orders. Trading is stopped, nothing replenished.")
		}
	}
	c.book.Sort()
	if c.book.TradingEnabled {
		Rotate(c.book)
	}

	c.notifier.Notify(fmt.Sprintf("[CHECK] Order check complete. Active orders: %d.", len(c.book.ActiveOrders)))
}

// replenish replaces a closed or canceled autobay order after the settle delay.
// A shutdown during the delay skips the buy.
func (c *Controller) replenish(shutdown, ctx context.Context) {
	c.logger.Info("[AUTOBAY] Autobay finished, replenishing", slog.Duration("delay", c.cfg.ReplenishDelay))
	c.persist(ctx)
	if err := c.wait(shutdown, c.cfg.ReplenishDelay); err != nil {
		c.logger.Info("[AUTOBAY] Shutdown during replenish delay, no new order", slog.Any("error", err))
		return
	}
	if _, ok := c.creator.Create(ctx, c.book, domain.OrderTypeAutobay); ok {
		Rotate(c.book)
	}
	c.persist(ctx)
}

// checkPriceDrop replaces the autobay anchor when the price fell below its buy price by the threshold.
func (c *Controller) checkPriceDrop(ctx context.Context) {
	autobay := c.book.Autobay()
	if autobay == nil {
		return
	}

	price, err := c.market.Price(ctx, c.cfg.Pair.Symbol())
	if err != nil {
		c.logger.Error("Price read aborted", slog.Any("error", err))
		return
	}
	if !c.trigger.CheckCondition(autobay.BuyPrice, price) {
		return
	}

	ok, err := c.creator.CheckFunds(ctx)
	if err != nil || !ok {
		return
	}

	c.logger.Info("[UPDATE] Price dropped, replacing autobay",
		slog.String("price", price.String()),
		slog.String("target", c.trigger.TargetPrice(autobay.BuyPrice).String()),
		slog.String("oid", autobay.ID),
	)
	c.book.DemoteAutobay()
	if _, ok := c.creator.Create(ctx, c.book, domain.OrderTypeAutobay); ok {
		Rotate(c.book)
	}
	c.persist(ctx)
}

func (c *Controller) persist(ctx context.Context) {
	if _, err := c.store.Save(ctx, c.book); err != nil {
		c.logger.Error("[ERROR] Failed to save state", slog.Any("error", err))
	}
}

// publish exposes a copy of the book to readers and refreshes the gauges.
func (c *Controller) publish() {
	snap := c.book.Clone()
	c.snapshot.Store(snap)
	c.metrics.SetBook(len(snap.ActiveOrders), snap.ExecutedCount, snap.TotalProfit, snap.TradingEnabled)
}

// DumpState writes the book to a file (for post-mortem).
func (c *Controller) DumpState(filename string) {
	c.logger.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(c.book, "", "  ")
	if err != nil {
		c.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		c.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
