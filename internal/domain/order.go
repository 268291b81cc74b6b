package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderType is the role an active sell order plays in the strategy.
type OrderType string

const (
	// OrderTypeBay is a plain standing sell order.
	OrderTypeBay OrderType = "bay"
	// OrderTypeAutobay marks the order whose closure triggers a replacement buy.
	OrderTypeAutobay OrderType = "autobay"
)

// OrderStatus is the remote status of an order as reported by the exchange.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is an active limit sell placed after a market buy.
// Amount is the base quantity, Price the limit price and BuyPrice the fill price of the buy.
type Order struct {
	ID       string
	Amount   decimal.Decimal
	Price    decimal.Decimal
	BuyPrice decimal.Decimal
	Type     OrderType
}

// IsAutobay reports whether the order holds the replenishment role.
func (o *Order) IsAutobay() bool {
	return o.Type == OrderTypeAutobay
}

// Profit returns (Price - BuyPrice) * Amount.
func (o *Order) Profit() decimal.Decimal {
	return o.Price.Sub(o.BuyPrice).Mul(o.Amount)
}

// Cost returns the quote amount spent on the originating buy.
func (o *Order) Cost() decimal.Decimal {
	return o.BuyPrice.Mul(o.Amount)
}

// Validate checks that the order can be tracked.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is empty")
	}
	if !o.Amount.IsPositive() || !o.Price.IsPositive() || !o.BuyPrice.IsPositive() {
		return fmt.Errorf("order %s: amount, price and buy price must be positive", o.ID)
	}
	if o.Type != OrderTypeBay && o.Type != OrderTypeAutobay {
		return fmt.Errorf("order %s: unknown type %q", o.ID, o.Type)
	}
	return nil
}

// BuyFill is the result of a market buy.
type BuyFill struct {
	ID           string
	FilledAmount decimal.Decimal
	AvgPrice     decimal.Decimal
}

// PlacedOrder is the result of a limit sell submission.
type PlacedOrder struct {
	ID string
}
