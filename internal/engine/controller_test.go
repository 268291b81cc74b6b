package engine

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"autobay/internal/domain"
	"autobay/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_StartupCreatesAutobay(t *testing.T) {
	h := newHarness(t, "0.07", "100")

	h.ctrl.Start(context.Background())

	book := h.book()
	require.Len(t, book.ActiveOrders, 1)
	assert.Equal(t, domain.OrderTypeAutobay, book.ActiveOrders[0].Type)
	assert.Equal(t, 1, h.notes.count("[CHECK] Checking previously created orders"))
	assert.Equal(t, 1, h.notes.count("[CHECK] Order check complete. Active orders: 1."))
	assert.Equal(t, 1, h.store.writes)
	assert.Len(t, h.ctrl.Snapshot().ActiveOrders, 1, "snapshot published after start")
}

func TestController_StartupStoppedDoesNotReplenish(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	stopped := domain.NewOrderBook()
	stopped.TradingEnabled = false
	stopped.ExecutedCount = 2
	h.store.initial = stopped

	h.ctrl.Start(context.Background())

	assert.Empty(t, h.book().ActiveOrders)
	assert.Equal(t, 1, h.notes.count("nothing replenished"))
	assert.Zero(t, h.paper.OpenOrders())
}

func TestController_StartupKeepsRestoredOrders(t *testing.T) {
	h := newHarness(t, "0.0690", "100")
	restored := domain.NewOrderBook()
	restored.Add(placeSell(t, h, "100", "0.0712", "0.0708", domain.OrderTypeBay))
	restored.Add(placeSell(t, h, "100", "0.0701", "0.0697", domain.OrderTypeBay))
	h.store.initial = restored

	h.ctrl.Start(context.Background())

	book := h.book()
	require.Len(t, book.ActiveOrders, 2)
	assert.Equal(t, "0.0701", book.Autobay().Price.String(), "cheapest restored order takes the role")
	assert.Zero(t, h.paper.GetBalance("USDT").Free.Cmp(d("100")), "no new buy on restart")
}

func TestController_StopDemotesAndNeverReplenishes(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)

	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)

	book := h.book()
	assert.False(t, book.TradingEnabled)
	require.Len(t, book.ActiveOrders, 1)
	assert.Equal(t, domain.OrderTypeBay, book.ActiveOrders[0].Type)
	assert.Equal(t, 1, h.notes.count("demoted to 'bay'"))

	// The order fills and the active set becomes empty: nothing is created.
	h.paper.SetPrice(testSymbol, d("0.0704"))
	for i := 0; i < 3; i++ {
		h.ctrl.Tick(ctx)
	}
	assert.Empty(t, h.book().ActiveOrders)
	assert.Equal(t, 1, h.book().ExecutedCount)
	assert.Zero(t, h.paper.OpenOrders())
	assert.Empty(t, h.waits, "no replenishment delay while stopped")

	// A second stop with nothing to demote
	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)
	assert.Equal(t, 1, h.notes.count("No 'autobay' orders"))
}

func TestController_StartResumesAndResetsFundsAlert(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	stopped := domain.NewOrderBook()
	stopped.TradingEnabled = false
	h.store.initial = stopped
	h.ctrl.Start(ctx)
	h.funds.Insufficient()

	h.queue.Push(event.CommandStart)
	h.ctrl.Tick(ctx)

	book := h.book()
	assert.True(t, book.TradingEnabled)
	require.Len(t, book.ActiveOrders, 1)
	assert.Equal(t, domain.OrderTypeAutobay, book.ActiveOrders[0].Type)
	assert.False(t, h.funds.Notified())
	assert.Equal(t, 2, h.notes.count("[CHECK] Checking previously created orders"))
}

func TestController_BuyCommandAddsBay(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)

	h.queue.Push(event.CommandBuy)
	h.ctrl.Tick(ctx)

	book := h.book()
	require.Len(t, book.ActiveOrders, 2)
	assert.Equal(t, 1, book.AutobayCount())
	assertRoles(t, book)
}

func TestController_BuyCommandWhileStopped(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)

	h.queue.Push(event.CommandBuy)
	h.ctrl.Tick(ctx)

	book := h.book()
	require.Len(t, book.ActiveOrders, 2)
	assert.Zero(t, book.AutobayCount(), "no autobay while stopped")
}

func TestController_OneCommandPerTick(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)

	h.queue.Push(event.CommandBuy)
	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)

	assert.True(t, h.book().TradingEnabled, "stop is consumed on the next tick")
	assert.Equal(t, 1, h.queue.Len())

	h.ctrl.Tick(ctx)
	assert.False(t, h.book().TradingEnabled)
}

func TestController_AutobayClosureReplenishes(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	first := h.book().ActiveOrders[0]

	h.paper.SetPrice(testSymbol, d("0.0704"))
	h.ctrl.Tick(ctx)

	book := h.book()
	assert.Equal(t, 1, book.ExecutedCount)
	assert.True(t, book.TotalProfit.IsPositive())
	require.Len(t, book.ActiveOrders, 1)
	assert.NotEqual(t, first.ID, book.ActiveOrders[0].ID)
	assert.Equal(t, domain.OrderTypeAutobay, book.ActiveOrders[0].Type)
	assert.True(t, book.ActiveOrders[0].BuyPrice.Equal(d("0.0704")))
	assert.Equal(t, []time.Duration{30 * time.Second}, h.waits)
}

func TestController_AutobayCancelReplenishesAfterRotation(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)

	h.queue.Push(event.CommandBuy)
	h.ctrl.Tick(ctx)
	autobay := h.book().Autobay()
	require.NotNil(t, autobay)
	require.NoError(t, h.paper.Cancel(autobay.ID))

	h.ctrl.Tick(ctx)

	book := h.book()
	require.Len(t, book.ActiveOrders, 2)
	assert.Zero(t, book.ExecutedCount, "cancellation does not count as executed")
	assertRoles(t, book)
	assert.Len(t, h.waits, 1)
}

func TestController_PriceDropReplacesAutobay(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	first := h.book().ActiveOrders[0]

	// 0.0694 > 0.07 * 0.99: no trigger
	h.paper.SetPrice(testSymbol, d("0.0694"))
	h.ctrl.Tick(ctx)
	require.Len(t, h.book().ActiveOrders, 1)

	// 0.0693 == 0.07 * 0.99: trigger
	h.paper.SetPrice(testSymbol, d("0.0693"))
	h.ctrl.Tick(ctx)

	book := h.book()
	require.Len(t, book.ActiveOrders, 2)
	ab := book.Autobay()
	require.NotNil(t, ab)
	assert.NotEqual(t, first.ID, ab.ID)
	assert.True(t, ab.BuyPrice.Equal(d("0.0693")))
	assertRoles(t, book)
}

func TestController_PriceDropInsufficientFundsNotifiesOnce(t *testing.T) {
	h := newHarness(t, "0.07", "20")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	require.Len(t, h.book().ActiveOrders, 1)

	h.paper.SetPrice(testSymbol, d("0.0693"))
	for i := 0; i < 5; i++ {
		h.ctrl.Tick(ctx)
	}
	assert.Equal(t, 1, h.notes.count("Insufficient funds"))
	assert.Len(t, h.book().ActiveOrders, 1)

	// A sufficient tick replaces the anchor and re-arms the alert.
	h.paper.Deposit("USDT", d("20"))
	h.ctrl.Tick(ctx)
	require.Len(t, h.book().ActiveOrders, 2)

	h.paper.SetPrice(testSymbol, d("0.0686"))
	h.ctrl.Tick(ctx)
	h.ctrl.Tick(ctx)
	assert.Equal(t, 2, h.notes.count("Insufficient funds"))
}

func TestController_RolesHoldEveryTick(t *testing.T) {
	h := newHarness(t, "0.07", "1000")
	ctx := context.Background()
	h.ctrl.Start(ctx)

	prices := []string{"0.0693", "0.0690", "0.0686", "0.0700", "0.0679", "0.0672", "0.0690", "0.0710", "0.0665", "0.0720"}
	for i, p := range prices {
		h.paper.SetPrice(testSymbol, d(p))
		if i%3 == 1 {
			h.queue.Push(event.CommandBuy)
		}
		h.ctrl.Tick(ctx)
		assertRoles(t, h.book())
		assertRoles(t, h.ctrl.Snapshot())
	}
	assert.Positive(t, h.book().ExecutedCount)
}

func TestController_PersistsOnlyChanges(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	writes := h.store.writes

	for i := 0; i < 3; i++ {
		h.ctrl.Tick(ctx)
	}
	assert.Equal(t, writes, h.store.writes, "idle ticks do not rewrite state")
}

func TestController_SnapshotIsACopy(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	h.ctrl.Start(context.Background())

	snap := h.ctrl.Snapshot()
	snap.ActiveOrders[0].Type = domain.OrderTypeBay

	assert.Equal(t, domain.OrderTypeAutobay, h.book().ActiveOrders[0].Type)
}

type panicStore struct{ memStore }

func (p *panicStore) Save(ctx context.Context, book *domain.OrderBook) (bool, error) {
	panic("disk on fire")
}

func TestController_PanicDumpsState(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	h.ctrl.store = &panicStore{}

	err := h.ctrl.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HALTED")
	_, statErr := os.Stat(h.ctrl.cfg.DumpPath)
	assert.NoError(t, statErr, "panic dump written")
}

type failingStore struct{ memStore }

func (f *failingStore) Save(ctx context.Context, book *domain.OrderBook) (bool, error) {
	return false, errors.New("read-only file system")
}

func TestController_SaveFailureKeepsTicking(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	h.ctrl.store = &failingStore{}
	ctx := context.Background()

	h.ctrl.Start(ctx)
	h.ctrl.Tick(ctx)

	assert.Len(t, h.book().ActiveOrders, 1)
}

func TestController_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	h.ctrl.wait = func(ctx context.Context, dur time.Duration) error {
		ticks++
		if ticks > 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := h.ctrl.Run(ctx)

	require.NoError(t, err)
	assert.Len(t, h.store.saved.ActiveOrders, 1, "state persisted on shutdown")
}

func TestController_ShutdownDuringReplenishDelaySkipsBuy(t *testing.T) {
	h := newHarness(t, "0.07", "100")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.ctrl.wait = func(wctx context.Context, dur time.Duration) error {
		h.waits = append(h.waits, dur)
		switch {
		case dur == h.ctrl.cfg.ReplenishDelay:
			// Signal arrives while waiting to replenish.
			cancel()
			return wctx.Err()
		case len(h.waits) == 1:
			// First tick: the autobay fills.
			h.paper.SetPrice(testSymbol, d("0.0704"))
			return nil
		default:
			return wctx.Err()
		}
	}

	err := h.ctrl.Run(ctx)

	require.NoError(t, err)
	assert.Contains(t, h.waits, 30*time.Second)
	assert.Empty(t, h.book().ActiveOrders, "no buy after the shutdown signal")
	assert.Equal(t, 1, h.book().ExecutedCount)
	assert.Equal(t, 1, h.notes.count("[BUY] BOUGHT"), "only the startup buy")
	assert.Zero(t, h.paper.OpenOrders())
	require.NotNil(t, h.store.saved)
	assert.Empty(t, h.store.saved.ActiveOrders)
	assert.Equal(t, 1, h.store.saved.ExecutedCount, "closure persisted before shutdown")
}

func TestController_StoppedStateLoadsWithoutAutobay(t *testing.T) {
	h := newHarness(t, "0.0690", "100")
	stored := domain.NewOrderBook()
	stored.TradingEnabled = false
	stored.Add(placeSell(t, h, "100", "0.0701", "0.0697", domain.OrderTypeAutobay))
	stored.Add(placeSell(t, h, "100", "0.0712", "0.0708", domain.OrderTypeAutobay))
	h.store.initial = stored
	ctx := context.Background()

	h.ctrl.Start(ctx)
	assert.Zero(t, h.book().AutobayCount())
	assert.Zero(t, h.store.saved.AutobayCount(), "normalized state persisted")

	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)
	assert.Zero(t, h.book().AutobayCount())
	assert.Len(t, h.book().ActiveOrders, 2)
}

func TestController_StopDemotesEveryAutobay(t *testing.T) {
	h := newHarness(t, "0.0690", "100")
	ctx := context.Background()
	h.ctrl.Start(ctx)
	h.book().Add(placeSell(t, h, "100", "0.0701", "0.0697", domain.OrderTypeAutobay))
	h.book().Add(placeSell(t, h, "100", "0.0712", "0.0708", domain.OrderTypeAutobay))
	require.Equal(t, 3, h.book().AutobayCount())

	h.queue.Push(event.CommandStop)
	h.ctrl.Tick(ctx)

	assert.Zero(t, h.book().AutobayCount())
	assert.Zero(t, h.ctrl.Snapshot().AutobayCount())
	assert.Equal(t, 1, h.notes.count("Orders "))
}
