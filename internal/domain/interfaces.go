package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange is the trading venue boundary.
// Implementations return *NetworkError for transient transport failures and
// *ExchangeError for venue rejections.
type Exchange interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	MarketBuy(ctx context.Context, symbol string, amount decimal.Decimal, clientID string) (BuyFill, error)
	LimitSell(ctx context.Context, symbol string, amount, price decimal.Decimal, clientID string) (PlacedOrder, error)
	OrderStatus(ctx context.Context, id, symbol string) (OrderStatus, error)
}

// PriceSource provides the last traded price without account access.
type PriceSource interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// MessageSender delivers one text message to the operator.
type MessageSender interface {
	Send(ctx context.Context, text string) error
}

// StateStore persists order book snapshots.
type StateStore interface {
	// Load returns the persisted book, or the default book when nothing usable is stored.
	Load(ctx context.Context) *OrderBook
	// Save writes the snapshot unless it equals what is stored. It reports whether a write happened.
	Save(ctx context.Context, book *OrderBook) (bool, error)
}

// TradeJournal records finished orders.
type TradeJournal interface {
	Record(rec *TradeRecord) error
	Recent(limit int) ([]TradeRecord, error)
}
