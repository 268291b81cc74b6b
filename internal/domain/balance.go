package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance represents one asset of an account with invariant checking.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`   // Spendable
	Locked decimal.Decimal `json:"locked"` // Reserved for open orders
}

// Total returns free + locked.
func (b *Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Credit adds funds to the free balance.
func (b *Balance) Credit(amount decimal.Decimal) {
	b.Free = b.Free.Add(amount)
}

// Debit removes free funds. Fails with ErrInsufficientFunds.
func (b *Balance) Debit(amount decimal.Decimal) error {
	if amount.GreaterThan(b.Free) {
		return fmt.Errorf("%s need %s, available %s: %w", b.Asset, amount, b.Free, ErrInsufficientFunds)
	}
	b.Free = b.Free.Sub(amount)
	return nil
}

// Lock moves free funds into the locked bucket.
func (b *Balance) Lock(amount decimal.Decimal) error {
	if err := b.Debit(amount); err != nil {
		return err
	}
	b.Locked = b.Locked.Add(amount)
	return nil
}

// Unlock returns locked funds to free.
func (b *Balance) Unlock(amount decimal.Decimal) error {
	if amount.GreaterThan(b.Locked) {
		return fmt.Errorf("%s release %s exceeds locked %s", b.Asset, amount, b.Locked)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Free = b.Free.Add(amount)
	return nil
}

// Spend consumes locked funds (a fill of an order that reserved them).
func (b *Balance) Spend(amount decimal.Decimal) error {
	if amount.GreaterThan(b.Locked) {
		return fmt.Errorf("%s spend %s exceeds locked %s", b.Asset, amount, b.Locked)
	}
	b.Locked = b.Locked.Sub(amount)
	return nil
}

// VerifyInvariant checks that neither bucket went negative.
func (b *Balance) VerifyInvariant() error {
	if b.Free.IsNegative() {
		return fmt.Errorf("BALANCE_INVARIANT_NEGATIVE_FREE: %s = %s", b.Asset, b.Free)
	}
	if b.Locked.IsNegative() {
		return fmt.Errorf("BALANCE_INVARIANT_NEGATIVE_LOCKED: %s = %s", b.Asset, b.Locked)
	}
	return nil
}

// BalanceBook manages multiple balances.
type BalanceBook struct {
	balances map[string]*Balance
}

// NewBalanceBook creates a new balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[string]*Balance),
	}
}

// Get returns the balance for an asset, creating if not exists.
func (bb *BalanceBook) Get(asset string) *Balance {
	b, ok := bb.balances[asset]
	if !ok {
		b = &Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
		bb.balances[asset] = b
	}
	return b
}

// VerifyAll checks invariants on all balances.
func (bb *BalanceBook) VerifyAll() error {
	for _, b := range bb.balances {
		if err := b.VerifyInvariant(); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of all balances.
func (bb *BalanceBook) Snapshot() map[string]Balance {
	result := make(map[string]Balance, len(bb.balances))
	for k, v := range bb.balances {
		result[k] = *v
	}
	return result
}
