package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is a finished (closed or canceled) sell order kept in the journal.
type TradeRecord struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   string          `gorm:"index" json:"order_id"`
	Symbol    string          `json:"symbol"`
	Role      OrderType       `json:"role"`
	Status    OrderStatus     `gorm:"index" json:"status"`
	Amount    decimal.Decimal `gorm:"type:text" json:"amount"`
	Price     decimal.Decimal `gorm:"type:text" json:"price"`
	BuyPrice  decimal.Decimal `gorm:"type:text" json:"buy_price"`
	Profit    decimal.Decimal `gorm:"type:text" json:"profit"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

// NewTradeRecord builds a journal entry for an order that left the active set.
// Canceled orders carry zero profit.
func NewTradeRecord(symbol string, o Order, status OrderStatus) *TradeRecord {
	profit := decimal.Zero
	if status == OrderStatusClosed {
		profit = o.Profit()
	}
	return &TradeRecord{
		OrderID:  o.ID,
		Symbol:   symbol,
		Role:     o.Type,
		Status:   status,
		Amount:   o.Amount,
		Price:    o.Price,
		BuyPrice: o.BuyPrice,
		Profit:   profit,
	}
}
