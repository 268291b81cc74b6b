package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"autobay/internal/domain"

	"github.com/shopspring/decimal"
)

// Operation names used for failure injection.
const (
	OpTicker      = "ticker"
	OpBalance     = "balance"
	OpMarketBuy   = "market_buy"
	OpLimitSell   = "limit_sell"
	OpOrderStatus = "order_status"
)

type paperOrder struct {
	symbol string
	amount decimal.Decimal
	price  decimal.Decimal
	status domain.OrderStatus
}

// PaperExchange simulates a spot account against a live or manual price feed.
// Limit sells fill when the price reaches them, checked lazily on OrderStatus.
type PaperExchange struct {
	mu sync.Mutex

	prices   domain.PriceSource
	manual   map[string]decimal.Decimal
	balances *domain.BalanceBook
	orders   map[string]*paperOrder
	buys     map[string]domain.BuyFill // by client id
	sells    map[string]string         // client id -> order id
	failures map[string][]error
	seq      int

	logger *slog.Logger
}

// NewPaperExchange creates a paper account. prices may be nil when every
// symbol is priced with SetPrice.
func NewPaperExchange(prices domain.PriceSource) *PaperExchange {
	return &PaperExchange{
		prices:   prices,
		manual:   make(map[string]decimal.Decimal),
		balances: domain.NewBalanceBook(),
		orders:   make(map[string]*paperOrder),
		buys:     make(map[string]domain.BuyFill),
		sells:    make(map[string]string),
		failures: make(map[string][]error),
		logger:   slog.Default().With("module", "paper_exchange"),
	}
}

// Deposit adds free funds to asset.
func (p *PaperExchange) Deposit(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances.Get(asset).Credit(amount)
}

// SetPrice pins the price of symbol, overriding the feed.
func (p *PaperExchange) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manual[symbol] = price
}

// FailNext makes the next len(errs) calls of op fail with errs in order.
func (p *PaperExchange) FailNext(op string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], errs...)
}

// GetBalance returns a copy of the balance of asset.
func (p *PaperExchange) GetBalance(asset string) domain.Balance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.balances.Get(asset)
}

// Cancel cancels an open sell and releases its base amount.
func (p *PaperExchange) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[id]
	if !ok {
		return domain.NewExchangeError("cancel", domain.KindOrderNotFound, "", nil)
	}
	if o.status != domain.OrderStatusOpen {
		return fmt.Errorf("order %s is %s", id, o.status)
	}
	market, err := domain.ParseMarket(o.symbol)
	if err != nil {
		return err
	}
	if err := p.balances.Get(market.Base).Unlock(o.amount); err != nil {
		return err
	}
	o.status = domain.OrderStatusCanceled
	return nil
}

// OpenOrders returns how many sells are still open.
func (p *PaperExchange) OpenOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.orders {
		if o.status == domain.OrderStatusOpen {
			n++
		}
	}
	return n
}

// TickerPrice implements domain.Exchange.
func (p *PaperExchange) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := p.injected(OpTicker); err != nil {
		return decimal.Zero, err
	}
	return p.price(ctx, symbol)
}

// AvailableBalance implements domain.Exchange.
func (p *PaperExchange) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := p.injected(OpBalance); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances.Get(asset).Free, nil
}

// MarketBuy fills amount at the current price. Repeating a client id returns the first fill.
func (p *PaperExchange) MarketBuy(ctx context.Context, symbol string, amount decimal.Decimal, clientID string) (domain.BuyFill, error) {
	if err := p.injected(OpMarketBuy); err != nil {
		return domain.BuyFill{}, err
	}
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return domain.BuyFill{}, err
	}
	price, err := p.price(ctx, symbol)
	if err != nil {
		return domain.BuyFill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if fill, ok := p.buys[clientID]; ok && clientID != "" {
		return fill, nil
	}

	cost := amount.Mul(price)
	if err := p.balances.Get(market.Quote).Debit(cost); err != nil {
		return domain.BuyFill{}, domain.NewExchangeError(OpMarketBuy, domain.KindInsufficientFunds, "", err)
	}
	p.balances.Get(market.Base).Credit(amount)
	if err := p.balances.VerifyAll(); err != nil {
		return domain.BuyFill{}, err
	}

	fill := domain.BuyFill{ID: p.nextID("B"), FilledAmount: amount, AvgPrice: price}
	if clientID != "" {
		p.buys[clientID] = fill
	}
	p.logger.Info("Paper buy filled", "oid", fill.ID, "amount", amount.String(), "price", price.String())
	return fill, nil
}

// LimitSell reserves amount of the base asset until the order fills or is canceled.
func (p *PaperExchange) LimitSell(ctx context.Context, symbol string, amount, price decimal.Decimal, clientID string) (domain.PlacedOrder, error) {
	if err := p.injected(OpLimitSell); err != nil {
		return domain.PlacedOrder{}, err
	}
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return domain.PlacedOrder{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.sells[clientID]; ok && clientID != "" {
		return domain.PlacedOrder{ID: id}, nil
	}

	if err := p.balances.Get(market.Base).Lock(amount); err != nil {
		return domain.PlacedOrder{}, domain.NewExchangeError(OpLimitSell, domain.KindInsufficientFunds, "", err)
	}

	id := p.nextID("S")
	p.orders[id] = &paperOrder{symbol: symbol, amount: amount, price: price, status: domain.OrderStatusOpen}
	if clientID != "" {
		p.sells[clientID] = id
	}
	return domain.PlacedOrder{ID: id}, nil
}

// OrderStatus implements domain.Exchange. An open sell fills once the price reaches its limit.
func (p *PaperExchange) OrderStatus(ctx context.Context, id, symbol string) (domain.OrderStatus, error) {
	if err := p.injected(OpOrderStatus); err != nil {
		return "", err
	}

	p.mu.Lock()
	o, ok := p.orders[id]
	var status domain.OrderStatus
	if ok {
		status = o.status
	}
	p.mu.Unlock()

	if !ok {
		return "", domain.NewExchangeError(OpOrderStatus, domain.KindOrderNotFound, "", nil)
	}
	if status != domain.OrderStatusOpen {
		return status, nil
	}

	price, err := p.price(ctx, o.symbol)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if o.status == domain.OrderStatusOpen && price.GreaterThanOrEqual(o.price) {
		market, err := domain.ParseMarket(o.symbol)
		if err != nil {
			return "", err
		}
		if err := p.balances.Get(market.Base).Spend(o.amount); err != nil {
			return "", err
		}
		p.balances.Get(market.Quote).Credit(o.amount.Mul(o.price))
		o.status = domain.OrderStatusClosed
	}
	return o.status, nil
}

func (p *PaperExchange) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	manual, ok := p.manual[symbol]
	p.mu.Unlock()
	if ok {
		return manual, nil
	}
	if p.prices == nil {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return p.prices.TickerPrice(ctx, symbol)
}

func (p *PaperExchange) injected(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	queue := p.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	p.failures[op] = queue[1:]
	return err
}

func (p *PaperExchange) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("paper-%s%d", prefix, p.seq)
}
