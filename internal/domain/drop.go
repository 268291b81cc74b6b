package domain

import "github.com/shopspring/decimal"

// DropTrigger decides when the price has fallen far enough below the autobay
// buy price to replace the autobay anchor with a cheaper one.
type DropTrigger struct {
	Threshold decimal.Decimal // fraction, 0.01 = 1%
}

// NewDropTrigger creates a trigger for the given fractional threshold.
func NewDropTrigger(threshold decimal.Decimal) DropTrigger {
	return DropTrigger{Threshold: threshold}
}

// TargetPrice returns buyPrice * (1 - Threshold).
func (t DropTrigger) TargetPrice(buyPrice decimal.Decimal) decimal.Decimal {
	return buyPrice.Mul(decimal.NewFromInt(1).Sub(t.Threshold))
}

// CheckCondition returns true when currentPrice <= buyPrice * (1 - Threshold).
// A non-positive price never fires.
func (t DropTrigger) CheckCondition(buyPrice, currentPrice decimal.Decimal) bool {
	if !currentPrice.IsPositive() || !buyPrice.IsPositive() {
		return false
	}
	return currentPrice.LessThanOrEqual(t.TargetPrice(buyPrice))
}
