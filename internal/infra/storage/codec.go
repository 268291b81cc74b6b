package storage

import (
	"autobay/internal/domain"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// persistedOrder is the on-disk form of an order. Decimals are written as
// JSON numbers using their exact string form.
type persistedOrder struct {
	ID        string      `json:"id"`
	Amount    json.Number `json:"amount"`
	Price     json.Number `json:"price"`
	BuyPrice  json.Number `json:"buy_price"`
	OrderType string      `json:"order_type"`
}

type persistedState struct {
	ActiveOrders        []persistedOrder `json:"active_orders"`
	ExecutedOrdersCount int              `json:"executed_orders_count"`
	TotalProfit         json.Number      `json:"total_profit"`
	TradingStopped      bool             `json:"trading_stopped"`
}

// encodeBook serializes a book with four-space indentation.
func encodeBook(book *domain.OrderBook) ([]byte, error) {
	st := persistedState{
		ActiveOrders:        make([]persistedOrder, 0, len(book.ActiveOrders)),
		ExecutedOrdersCount: book.ExecutedCount,
		TotalProfit:         json.Number(book.TotalProfit.String()),
		TradingStopped:      !book.TradingEnabled,
	}
	for _, o := range book.ActiveOrders {
		st.ActiveOrders = append(st.ActiveOrders, persistedOrder{
			ID:        o.ID,
			Amount:    json.Number(o.Amount.String()),
			Price:     json.Number(o.Price.String()),
			BuyPrice:  json.Number(o.BuyPrice.String()),
			OrderType: string(o.Type),
		})
	}
	return json.MarshalIndent(st, "", "    ")
}

// decodeBook parses a persisted snapshot. Orders come back sorted by price.
func decodeBook(data []byte) (*domain.OrderBook, error) {
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}

	book := domain.NewOrderBook()
	book.ExecutedCount = st.ExecutedOrdersCount
	book.TradingEnabled = !st.TradingStopped

	profit, err := parseNumber(st.TotalProfit)
	if err != nil {
		return nil, err
	}
	book.TotalProfit = profit

	for _, po := range st.ActiveOrders {
		o := domain.Order{ID: po.ID, Type: domain.OrderType(po.OrderType)}
		if o.Amount, err = parseNumber(po.Amount); err != nil {
			return nil, err
		}
		if o.Price, err = parseNumber(po.Price); err != nil {
			return nil, err
		}
		if o.BuyPrice, err = parseNumber(po.BuyPrice); err != nil {
			return nil, err
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}
		book.ActiveOrders = append(book.ActiveOrders, o)
	}
	book.Sort()
	return book, nil
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
