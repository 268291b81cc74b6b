package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// OrderBook is the aggregate of active sell orders and running counters.
// It is owned by the controller goroutine; other goroutines only see copies.
type OrderBook struct {
	ActiveOrders   []Order
	ExecutedCount  int
	TotalProfit    decimal.Decimal
	TradingEnabled bool
}

// NewOrderBook returns the empty default book (trading enabled).
func NewOrderBook() *OrderBook {
	return &OrderBook{
		TotalProfit:    decimal.Zero,
		TradingEnabled: true,
	}
}

// Sort orders active orders ascending by price. Equal prices keep insertion order.
func (b *OrderBook) Sort() {
	slices.SortStableFunc(b.ActiveOrders, func(x, y Order) int {
		return x.Price.Cmp(y.Price)
	})
}

// Add appends an order and restores price ordering.
func (b *OrderBook) Add(o Order) {
	b.ActiveOrders = append(b.ActiveOrders, o)
	b.Sort()
}

// Autobay returns the first order holding the autobay role, or nil.
func (b *OrderBook) Autobay() *Order {
	for i := range b.ActiveOrders {
		if b.ActiveOrders[i].IsAutobay() {
			return &b.ActiveOrders[i]
		}
	}
	return nil
}

// AutobayCount returns how many active orders hold the autobay role.
func (b *OrderBook) AutobayCount() int {
	n := 0
	for i := range b.ActiveOrders {
		if b.ActiveOrders[i].IsAutobay() {
			n++
		}
	}
	return n
}

// DemoteAutobay turns every autobay order into a bay order and returns the demoted orders.
func (b *OrderBook) DemoteAutobay() []Order {
	var demoted []Order
	for i := range b.ActiveOrders {
		if b.ActiveOrders[i].IsAutobay() {
			b.ActiveOrders[i].Type = OrderTypeBay
			demoted = append(demoted, b.ActiveOrders[i])
		}
	}
	return demoted
}

// RecordClosed applies the counters of a closed order and returns its profit.
// ExecutedCount and TotalProfit only ever change here, together.
func (b *OrderBook) RecordClosed(o Order) decimal.Decimal {
	profit := o.Profit()
	b.ExecutedCount++
	b.TotalProfit = b.TotalProfit.Add(profit)
	return profit
}

// IsZero reports whether the book carries no information worth persisting.
func (b *OrderBook) IsZero() bool {
	return len(b.ActiveOrders) == 0 &&
		b.ExecutedCount == 0 &&
		b.TotalProfit.IsZero() &&
		b.TradingEnabled
}

// FrozenQuote is the quote value locked in active sells at their limit price.
func (b *OrderBook) FrozenQuote() decimal.Decimal {
	total := decimal.Zero
	for _, o := range b.ActiveOrders {
		total = total.Add(o.Amount.Mul(o.Price))
	}
	return total
}

// FrozenBase is the base quantity locked in active sells.
func (b *OrderBook) FrozenBase() decimal.Decimal {
	total := decimal.Zero
	for _, o := range b.ActiveOrders {
		total = total.Add(o.Amount)
	}
	return total
}

// Clone returns a deep copy.
func (b *OrderBook) Clone() *OrderBook {
	c := *b
	c.ActiveOrders = slices.Clone(b.ActiveOrders)
	return &c
}

// Equal compares two books field by field.
func (b *OrderBook) Equal(other *OrderBook) bool {
	if other == nil {
		return false
	}
	if b.ExecutedCount != other.ExecutedCount ||
		!b.TotalProfit.Equal(other.TotalProfit) ||
		b.TradingEnabled != other.TradingEnabled ||
		len(b.ActiveOrders) != len(other.ActiveOrders) {
		return false
	}
	for i, o := range b.ActiveOrders {
		p := other.ActiveOrders[i]
		if o.ID != p.ID || o.Type != p.Type ||
			!o.Amount.Equal(p.Amount) || !o.Price.Equal(p.Price) || !o.BuyPrice.Equal(p.BuyPrice) {
			return false
		}
	}
	return true
}
