package service

import (
	"context"
	"sync"
	"time"

	"autobay/internal/domain"
	"autobay/internal/infra"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// PriceService reads price and balance through the backoff policy.
// The last price is cached for a short window. Concurrent readers of a stale
// price share one refresh and each waits for it under its own ctx.
type PriceService struct {
	mu       sync.Mutex
	refresh  singleflight.Group
	exchange domain.Exchange
	policy   infra.Backoff
	ttl      time.Duration
	now      func() time.Time
	last     map[string]*domain.Ticker
}

// NewPriceService creates a new PriceService instance
func NewPriceService(exchange domain.Exchange, policy infra.Backoff, ttl time.Duration) *PriceService {
	return &PriceService{
		exchange: exchange,
		policy:   policy,
		ttl:      ttl,
		now:      time.Now,
		last:     make(map[string]*domain.Ticker),
	}
}

// Price returns the cached price of symbol, refreshing it when stale.
// Transient failures are retried until the refresh's ctx ends; a caller whose
// ctx ends first stops waiting while the refresh carries on.
func (s *PriceService) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if t, ok := s.fresh(symbol); ok {
		return t.Price, nil
	}

	ch := s.refresh.DoChan(symbol, func() (any, error) {
		if t, ok := s.fresh(symbol); ok {
			return t.Price, nil
		}
		// Followers may outlive the caller that started the refresh.
		fetchCtx := context.WithoutCancel(ctx)
		price, err := infra.Retry(fetchCtx, s.policy, "ticker", func(ctx context.Context) (decimal.Decimal, error) {
			return s.exchange.TickerPrice(ctx, symbol)
		})
		if err != nil {
			return decimal.Zero, err
		}

		s.mu.Lock()
		s.last[symbol] = &domain.Ticker{Symbol: symbol, Price: price, FetchedAt: s.now()}
		s.mu.Unlock()
		return price, nil
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (s *PriceService) fresh(symbol string) (domain.Ticker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.last[symbol]
	if !t.IsFresh(s.now(), s.ttl) {
		return domain.Ticker{}, false
	}
	return *t, true
}

// Balance returns the free balance of asset. It is never cached.
func (s *PriceService) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return infra.Retry(ctx, s.policy, "balance", func(ctx context.Context) (decimal.Decimal, error) {
		return s.exchange.AvailableBalance(ctx, asset)
	})
}

// Last returns the most recent cached ticker of symbol without fetching.
func (s *PriceService) Last(symbol string) (domain.Ticker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.last[symbol]
	if !ok {
		return domain.Ticker{}, false
	}
	return *t, true
}
