package engine

import (
	"testing"

	"autobay/internal/domain"

	"github.com/stretchr/testify/assert"
)

func bookOf(orders ...domain.Order) *domain.OrderBook {
	b := domain.NewOrderBook()
	for _, o := range orders {
		b.Add(o)
	}
	return b
}

func ord(id, price string, typ domain.OrderType) domain.Order {
	return domain.Order{ID: id, Amount: d("100"), Price: d(price), BuyPrice: d(price), Type: typ}
}

func TestRotate(t *testing.T) {
	tests := []struct {
		name    string
		orders  []domain.Order
		want    string // id expected to hold the role
		changed bool
	}{
		{
			name: "none marked promotes cheapest",
			orders: []domain.Order{
				ord("a", "0.072", domain.OrderTypeBay),
				ord("b", "0.069", domain.OrderTypeBay),
				ord("c", "0.075", domain.OrderTypeBay),
			},
			want:    "b",
			changed: true,
		},
		{
			name: "two marked keeps cheapest",
			orders: []domain.Order{
				ord("a", "0.08", domain.OrderTypeAutobay),
				ord("b", "0.07", domain.OrderTypeAutobay),
			},
			want:    "b",
			changed: true,
		},
		{
			name: "single cheapest unchanged",
			orders: []domain.Order{
				ord("a", "0.07", domain.OrderTypeAutobay),
				ord("b", "0.08", domain.OrderTypeBay),
			},
			want:    "a",
			changed: false,
		},
		{
			name: "equal price tie keeps holder",
			orders: []domain.Order{
				ord("a", "0.07", domain.OrderTypeBay),
				ord("b", "0.07", domain.OrderTypeAutobay),
			},
			want:    "b",
			changed: false,
		},
		{
			name: "single holder undercut moves to cheapest",
			orders: []domain.Order{
				ord("a", "0.07", domain.OrderTypeAutobay),
				ord("b", "0.0695", domain.OrderTypeBay),
			},
			want:    "b",
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := bookOf(tt.orders...)

			changed := Rotate(book)

			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, 1, book.AutobayCount())
			assert.Equal(t, tt.want, book.Autobay().ID)
			assertRoles(t, book)
		})
	}
}

func TestRotate_EmptyBook(t *testing.T) {
	book := domain.NewOrderBook()
	assert.False(t, Rotate(book))
	assert.Nil(t, book.Autobay())
}

func TestFundsAlert_EdgeTriggered(t *testing.T) {
	var f FundsAlert

	assert.True(t, f.Insufficient(), "first insufficient check notifies")
	assert.False(t, f.Insufficient())
	assert.False(t, f.Insufficient())

	f.Sufficient()
	assert.True(t, f.Insufficient(), "notifies again after a sufficient check")

	f.Reset()
	assert.False(t, f.Notified())
}
