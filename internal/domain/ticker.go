package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the last traded price of a symbol at fetch time.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// IsFresh reports whether the ticker is younger than ttl at now.
func (t *Ticker) IsFresh(now time.Time, ttl time.Duration) bool {
	if t == nil || t.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(t.FetchedAt) <= ttl
}

// Market splits a trading pair such as "KAS/USDT" into its assets.
type Market struct {
	Base  string
	Quote string
}

// Symbol returns the unified "BASE/QUOTE" form.
func (m Market) Symbol() string {
	return m.Base + "/" + m.Quote
}

// Pair returns the concatenated venue form (e.g., "KASUSDT").
func (m Market) Pair() string {
	return m.Base + m.Quote
}

// ParseMarket parses "BASE/QUOTE".
func ParseMarket(symbol string) (Market, error) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return Market{}, fmt.Errorf("invalid symbol %q: want BASE/QUOTE", symbol)
	}
	return Market{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}, nil
}
