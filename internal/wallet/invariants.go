package wallet

import (
	"fmt"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"

	"github.com/shopspring/decimal"
)

// The checks below are the whole invariant surface of the balance engine:
// balance >= 0, 0 <= locked <= balance, and a debit may never consume funds
// that are still locked. They are pure so the engine and its tests share one
// definition.

func checkAdjust(balance, locked, delta decimal.Decimal) error {
	next := balance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: balance %s, delta %s", traderr.ErrInsufficientFunds, balance, delta)
	}
	if next.LessThan(locked) {
		return fmt.Errorf("%w: debit would consume locked funds (balance %s, locked %s, delta %s)",
			traderr.ErrInsufficientFunds, balance, locked, delta)
	}
	return nil
}

func checkLock(balance, locked, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: lock amount must be positive", traderr.ErrInvalidOrder)
	}
	available := balance.Sub(locked)
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: need %s, available %s", traderr.ErrInsufficientAvailable, amount, available)
	}
	return nil
}

func checkUnlock(locked, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: unlock amount must be positive", traderr.ErrInvalidOrder)
	}
	if amount.GreaterThan(locked) {
		return fmt.Errorf("%w: unlock %s exceeds locked %s", traderr.ErrInvalidUnlock, amount, locked)
	}
	return nil
}
