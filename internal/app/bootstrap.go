package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autobay/internal/domain"
	"autobay/internal/engine"
	"autobay/internal/event"
	"autobay/internal/execution"
	"autobay/internal/infra"
	"autobay/internal/infra/mexc"
	"autobay/internal/infra/server"
	"autobay/internal/infra/storage"
	"autobay/internal/infra/telegram"
	"autobay/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
)

// shutdownTimeout bounds how long Run waits for the controller's final tick
// and the notifier after the context is canceled.
const shutdownTimeout = 30 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Metrics *infra.Metrics

	Exchange   domain.Exchange
	Store      domain.StateStore
	Journal    *storage.Journal
	Bot        *telegram.Bot
	Notifier   *service.Notifier
	Router     *service.Router
	Controller *engine.Controller
	Server     *server.Server

	redis *redis.Client
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration and wires every component.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping autobay...",
		slog.String("version", cfg.App.Version),
		slog.String("symbol", cfg.Strategy.Symbol),
		slog.Bool("paper", cfg.Exchange.Paper),
	)

	pair, err := domain.ParseMarket(cfg.Strategy.Symbol)
	if err != nil {
		return err
	}

	// 3. Metrics and retry policies
	b.Metrics = infra.NewMetrics()
	network := infra.NewBackoff(cfg.Backoff.Base, cfg.Backoff.Max)
	network.OnRetry = func(op string, attempt int, delay time.Duration, err error) {
		b.Metrics.RecordRetry(op)
	}

	// 4. Exchange
	if err := b.initExchange(cfg); err != nil {
		return err
	}

	// 5. Storage
	if err := b.initStorage(ctx, cfg); err != nil {
		return err
	}
	slog.Info("✅ Storage initialized", slog.String("backend", cfg.State.Backend))

	// 6. Telegram
	bot, err := telegram.NewBot(cfg)
	if err != nil {
		return err
	}
	b.Bot = bot
	b.Notifier = service.NewNotifier(bot, service.DefaultRetryPause, b.Metrics)

	// 7. Engine
	prices := service.NewPriceService(b.Exchange, network, cfg.Strategy.PriceCacheTTL)
	commands := event.NewQueue[event.Command]()
	funds := &engine.FundsAlert{}

	reconciler := engine.NewReconciler(b.Exchange, pair, cfg.Strategy.PollWorkers, cfg.Strategy.PollDelay,
		b.Notifier, b.Journal, b.Metrics)
	creator := engine.NewCreator(engine.CreatorConfig{
		OrderSize:      cfg.Strategy.OrderSize,
		ProfitMargin:   cfg.Strategy.ProfitMargin,
		Attempts:       cfg.Strategy.OrderAttempts,
		PricePrecision: cfg.Exchange.PricePrecision,
	}, b.Exchange, prices, pair, funds, b.Notifier, network, engine.RateLimitBackoff(), b.Metrics)

	b.Controller = engine.NewController(engine.ControllerConfig{
		Pair:           pair,
		DropThreshold:  cfg.Strategy.DropThreshold,
		ReplenishDelay: cfg.Strategy.ReplenishDelay,
		TickInterval:   cfg.Strategy.TickInterval,
	}, b.Store, reconciler, creator, prices, commands, b.Notifier, funds, b.Metrics)

	b.Router = service.NewRouter(commands, b.Controller, prices, b.Journal, pair, b.Metrics)

	// 8. Status server (optional)
	if cfg.HTTP.Addr != "" {
		b.Server = server.New(cfg.HTTP.Addr, pair.Symbol(), server.Sources{
			Book:    b.Controller,
			Prices:  prices,
			Journal: b.Journal,
			Metrics: b.Metrics,
		})
	}

	return nil
}

func (b *Bootstrap) initExchange(cfg *infra.Config) error {
	client := mexc.NewClient(cfg)
	if !cfg.Exchange.Paper {
		b.Exchange = client
		return nil
	}

	// Paper mode trades against the live public ticker.
	quote, err := decimal.NewFromString(cfg.Exchange.PaperQuoteBalance)
	if err != nil {
		return &domain.ConfigError{Field: "exchange.paper_quote_balance", Err: err}
	}
	pair, _ := domain.ParseMarket(cfg.Strategy.Symbol)
	paper := execution.NewPaperExchange(client)
	paper.Deposit(pair.Quote, quote)
	b.Exchange = paper
	slog.Info("📝 Paper trading enabled", slog.String("quote_balance", quote.String()))
	return nil
}

func (b *Bootstrap) initStorage(ctx context.Context, cfg *infra.Config) error {
	journal, err := storage.NewJournal(cfg.State.JournalPath)
	if err != nil {
		return err
	}
	b.Journal = journal

	switch cfg.State.Backend {
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg.State.RedisAddr)
		if err != nil {
			return err
		}
		b.redis = client
		b.Store = storage.NewRedisStore(client, cfg.State.RedisKey)
	default:
		b.Store = storage.NewFileStore(cfg.State.Path)
	}
	return nil
}

// Run starts every component and blocks until ctx is canceled or the
// controller halts. The returned error is the controller's.
func (b *Bootstrap) Run(ctx context.Context) error {
	var lifecycle conc.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The notifier and listener outlive ctx so shutdown messages still go out.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()

	lifecycle.Go(func() { b.Notifier.Run(bgCtx) })
	lifecycle.Go(func() { b.Bot.Listen(ctx, b.Router) })
	if b.Server != nil {
		lifecycle.Go(func() {
			if err := b.Server.Run(ctx); err != nil {
				slog.Error("Status server failed", slog.Any("error", err))
			}
		})
	}

	runErr := make(chan error, 1)
	go func() { runErr <- b.Controller.Run(ctx) }()

	slog.Info("✨ autobay fully operational. Press Ctrl+C to exit.")

	var err error
	select {
	case err = <-runErr:
		if err != nil {
			b.Notifier.Notify(fmt.Sprintf("[ERROR] Bot halted: %v", err))
		}
	case <-ctx.Done():
		slog.Info("👋 Shutting down gracefully...")
		select {
		case err = <-runErr:
		case <-time.After(shutdownTimeout):
			slog.Error("Controller did not stop in time")
		}
	}

	cancel()
	b.drainNotifications()
	bgCancel()
	lifecycle.Wait()
	return err
}

// drainNotifications gives queued messages a bounded chance to be delivered.
func (b *Bootstrap) drainNotifications() {
	deadline := time.Now().Add(5 * time.Second)
	for b.Notifier.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if n := b.Notifier.Pending(); n > 0 {
		slog.Warn("Undelivered notifications dropped at shutdown", slog.Int("pending", n))
	}
}

// Close releases storage handles.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Error("Failed to close journal", slog.Any("error", err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			slog.Error("Failed to close redis", slog.Any("error", err))
		}
	}
}
