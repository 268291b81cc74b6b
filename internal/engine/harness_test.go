package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"autobay/internal/domain"
	"autobay/internal/event"
	"autobay/internal/execution"
	"autobay/internal/infra"
	"autobay/internal/service"

	"github.com/shopspring/decimal"
)

const testSymbol = "KAS/USDT"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- Setup & Helpers --------------------------------------------------------

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *recorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type memStore struct {
	mu      sync.Mutex
	initial *domain.OrderBook
	saved   *domain.OrderBook
	writes  int
}

func (s *memStore) Load(ctx context.Context) *domain.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initial == nil {
		return domain.NewOrderBook()
	}
	return s.initial.Clone()
}

func (s *memStore) Save(ctx context.Context, book *domain.OrderBook) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved != nil && s.saved.Equal(book) {
		return false, nil
	}
	s.saved = book.Clone()
	s.writes++
	return true, nil
}

type memJournal struct {
	mu   sync.Mutex
	recs []domain.TradeRecord
}

func (m *memJournal) Record(rec *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memJournal) Recent(limit int) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeRecord(nil), m.recs...), nil
}

// noDelayRateLimit paces rate-limited retries without sleeping.
func noDelayRateLimit() infra.Backoff {
	return infra.Backoff{Retryable: func(error) bool { return false }}
}

type harness struct {
	pair    domain.Market
	paper   *execution.PaperExchange
	notes   *recorder
	store   *memStore
	journal *memJournal
	queue   *event.Queue[event.Command]
	funds   *FundsAlert
	creator *Creator
	ctrl    *Controller
	waits   []time.Duration
}

func newHarness(t *testing.T, price, quote string) *harness {
	t.Helper()
	pair, err := domain.ParseMarket(testSymbol)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		pair:    pair,
		paper:   execution.NewPaperExchange(nil),
		notes:   &recorder{},
		store:   &memStore{},
		journal: &memJournal{},
		queue:   event.NewQueue[event.Command](),
		funds:   &FundsAlert{},
	}
	h.paper.SetPrice(testSymbol, d(price))
	h.paper.Deposit("USDT", d(quote))

	prices := service.NewPriceService(h.paper, infra.NoDelayBackoff(), 0)
	reconciler := NewReconciler(h.paper, pair, 3, 0, h.notes, h.journal, nil)
	h.creator = NewCreator(CreatorConfig{
		OrderSize:      d("15"),
		ProfitMargin:   d("0.005"),
		Attempts:       3,
		PricePrecision: 6,
	}, h.paper, prices, pair, h.funds, h.notes, infra.NoDelayBackoff(), noDelayRateLimit(), nil)

	h.ctrl = NewController(ControllerConfig{
		Pair:           pair,
		DropThreshold:  d("0.01"),
		ReplenishDelay: 30 * time.Second,
		DumpPath:       t.TempDir() + "/panic_dump.json",
	}, h.store, reconciler, h.creator, prices, h.queue, h.notes, h.funds, nil)
	h.ctrl.wait = func(ctx context.Context, dur time.Duration) error {
		h.waits = append(h.waits, dur)
		return nil
	}
	return h
}

func (h *harness) book() *domain.OrderBook {
	return h.ctrl.book
}

// assertRoles checks that a trading book has exactly one autobay order at the lowest price.
func assertRoles(t *testing.T, book *domain.OrderBook) {
	t.Helper()
	if !book.TradingEnabled || len(book.ActiveOrders) == 0 {
		return
	}
	if n := book.AutobayCount(); n != 1 {
		t.Fatalf("expected exactly one autobay, got %d: %+v", n, book.ActiveOrders)
	}
	ab := book.Autobay()
	for _, o := range book.ActiveOrders {
		if o.Price.LessThan(ab.Price) {
			t.Fatalf("autobay %s at %s is not the cheapest (%s at %s)", ab.ID, ab.Price, o.ID, o.Price)
		}
	}
}
