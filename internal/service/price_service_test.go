package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autobay/internal/domain"
	"autobay/internal/execution"
	"autobay/internal/infra"

	"github.com/shopspring/decimal"
)

const testSymbol = "KAS/USDT"

// countingSource counts ticker calls on top of a paper exchange.
type countingSource struct {
	*execution.PaperExchange
	calls atomic.Int32
}

func (c *countingSource) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.calls.Add(1)
	return c.PaperExchange.TickerPrice(ctx, symbol)
}

func newCountingSource(price string) *countingSource {
	paper := execution.NewPaperExchange(nil)
	paper.SetPrice(testSymbol, decimal.RequireFromString(price))
	return &countingSource{PaperExchange: paper}
}

func TestPriceService_CachesWithinWindow(t *testing.T) {
	src := newCountingSource("0.07")
	svc := NewPriceService(src, infra.NoDelayBackoff(), 5*time.Second)

	now := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p, err := svc.Price(context.Background(), testSymbol)
		if err != nil {
			t.Fatalf("Price failed: %v", err)
		}
		if !p.Equal(decimal.RequireFromString("0.07")) {
			t.Errorf("Expected 0.07, got %s", p)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("Expected 1 fetch within the window, got %d", got)
	}

	// Stale after the window
	src.SetPrice(testSymbol, decimal.RequireFromString("0.068"))
	now = now.Add(6 * time.Second)
	p, _ := svc.Price(context.Background(), testSymbol)
	if !p.Equal(decimal.RequireFromString("0.068")) {
		t.Errorf("Expected refreshed 0.068, got %s", p)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}
}

func TestPriceService_ConcurrentReadersFetchOnce(t *testing.T) {
	src := newCountingSource("0.07")
	svc := NewPriceService(src, infra.NoDelayBackoff(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Price(context.Background(), testSymbol)
		}()
	}
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("Expected a single fetch for concurrent readers, got %d", got)
	}
}

func TestPriceService_RetriesTransientFailures(t *testing.T) {
	src := newCountingSource("0.07")
	netErr := domain.NewNetworkError(execution.OpTicker, errors.New("timeout"))
	src.FailNext(execution.OpTicker, netErr, netErr)

	svc := NewPriceService(src, infra.NoDelayBackoff(), time.Minute)
	p, err := svc.Price(context.Background(), testSymbol)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("0.07")) {
		t.Errorf("Expected 0.07, got %s", p)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

// stallingSource blocks ticker reads until released.
type stallingSource struct {
	*execution.PaperExchange
	entered chan struct{}
	release chan struct{}
}

func (s *stallingSource) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.PaperExchange.TickerPrice(ctx, symbol)
}

func TestPriceService_WaitersHonorTheirDeadline(t *testing.T) {
	paper := execution.NewPaperExchange(nil)
	paper.SetPrice(testSymbol, decimal.RequireFromString("0.07"))
	src := &stallingSource{PaperExchange: paper, entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewPriceService(src, infra.NoDelayBackoff(), time.Minute)

	type result struct {
		price decimal.Decimal
		err   error
	}
	first := make(chan result, 1)
	go func() {
		p, err := svc.Price(context.Background(), testSymbol)
		first <- result{p, err}
	}()
	<-src.entered

	// A query with its own deadline must not wait for the stalled refresh.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := svc.Price(ctx, testSymbol); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("Waiter blocked for %s", waited)
	}
	if _, ok := svc.Last(testSymbol); ok {
		t.Error("Nothing cached while the refresh is stalled")
	}

	close(src.release)
	res := <-first
	if res.err != nil || !res.price.Equal(decimal.RequireFromString("0.07")) {
		t.Errorf("Stalled refresh should complete, got %s (%v)", res.price, res.err)
	}
}

func TestPriceService_Balance(t *testing.T) {
	src := newCountingSource("0.07")
	src.Deposit("USDT", decimal.NewFromInt(42))
	src.FailNext(execution.OpBalance, domain.NewNetworkError(execution.OpBalance, errors.New("reset")))

	svc := NewPriceService(src, infra.NoDelayBackoff(), time.Minute)
	bal, err := svc.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(42)) {
		t.Errorf("Expected 42, got %s", bal)
	}
}

func TestPriceService_Last(t *testing.T) {
	src := newCountingSource("0.07")
	svc := NewPriceService(src, infra.NoDelayBackoff(), time.Minute)

	if _, ok := svc.Last(testSymbol); ok {
		t.Error("Expected no cached ticker before the first fetch")
	}
	svc.Price(context.Background(), testSymbol)
	if tk, ok := svc.Last(testSymbol); !ok || tk.Symbol != testSymbol {
		t.Errorf("Expected cached ticker, got %+v", tk)
	}
}
