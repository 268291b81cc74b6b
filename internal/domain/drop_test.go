package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDropTrigger_CheckCondition(t *testing.T) {
	trigger := NewDropTrigger(decimal.RequireFromString("0.01"))
	buy := decimal.RequireFromString("0.07")

	t.Run("fires exactly at target", func(t *testing.T) {
		if !trigger.CheckCondition(buy, decimal.RequireFromString("0.0693")) {
			t.Error("Should fire at 0.07 * 0.99 = 0.0693")
		}
	})

	t.Run("fires below target", func(t *testing.T) {
		if !trigger.CheckCondition(buy, decimal.RequireFromString("0.069")) {
			t.Error("Should fire below target price")
		}
	})

	t.Run("does not fire just above target", func(t *testing.T) {
		if trigger.CheckCondition(buy, decimal.RequireFromString("0.0694")) {
			t.Error("Should not fire above target price")
		}
	})

	t.Run("zero price never fires", func(t *testing.T) {
		if trigger.CheckCondition(buy, decimal.Zero) {
			t.Error("Zero price must not fire")
		}
	})
}

func TestDropTrigger_TargetPrice(t *testing.T) {
	trigger := NewDropTrigger(decimal.RequireFromString("0.01"))
	got := trigger.TargetPrice(decimal.RequireFromString("0.07"))
	if !got.Equal(decimal.RequireFromString("0.0693")) {
		t.Errorf("Expected 0.0693, got %s", got)
	}
}
