package engine

import (
	"log/slog"

	"autobay/internal/domain"
)

// Rotate enforces the autobay role on a price-sorted book: exactly one order
// holds it and that order carries the lowest price. It reports whether any
// role changed. Callers apply it only while trading is enabled.
func Rotate(book *domain.OrderBook) bool {
	if len(book.ActiveOrders) == 0 {
		return false
	}

	cheapest := book.ActiveOrders[0].Price
	keep := -1
	for i := range book.ActiveOrders {
		o := &book.ActiveOrders[i]
		if o.IsAutobay() && o.Price.Equal(cheapest) {
			keep = i
			break
		}
	}

	count := book.AutobayCount()
	if count == 1 && keep >= 0 {
		return false
	}

	switch {
	case count == 0:
		slog.Info("[UPDATE] Assigning a new 'autobay'", slog.String("oid", book.ActiveOrders[0].ID))
	case count > 1:
		slog.Warn("[WARNING] Several 'autobay' orders, keeping the cheapest", slog.Int("count", count))
	default:
		slog.Info("[UPDATE] Moving 'autobay' to the cheapest order", slog.String("oid", book.ActiveOrders[0].ID))
	}

	if keep < 0 {
		keep = 0
	}
	for i := range book.ActiveOrders {
		if i == keep {
			book.ActiveOrders[i].Type = domain.OrderTypeAutobay
		} else {
			book.ActiveOrders[i].Type = domain.OrderTypeBay
		}
	}
	return true
}
