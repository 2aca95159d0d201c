package orders

import (
	"fmt"
	"strings"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
)

// Each order kind carries only the price fields it needs; the union is
// validated at construction so nothing downstream re-checks shape.
//
//	market      — no prices
//	limit       — Price
//	stop_loss   — StopPrice (market once triggered)
//	take_profit — Price (fills once the quote reaches it)
//	oco         — Price + StopPrice (first leg to trigger cancels the other)
func validateKind(kind types.OrderKind, side types.OrderSide, price, stop *decimal.Decimal) error {
	positive := func(p *decimal.Decimal) bool { return p != nil && p.GreaterThan(decimal.Zero) }
	switch kind {
	case types.OrderKindMarket:
		if price != nil || stop != nil {
			return fmt.Errorf("%w: market order carries no price fields", traderr.ErrInvalidOrder)
		}
	case types.OrderKindLimit:
		if !positive(price) {
			return fmt.Errorf("%w: limit order requires a positive price", traderr.ErrInvalidOrder)
		}
		if stop != nil {
			return fmt.Errorf("%w: limit order carries no stop price", traderr.ErrInvalidOrder)
		}
	case types.OrderKindStopLoss:
		if !positive(stop) {
			return fmt.Errorf("%w: stop-loss order requires a positive stop price", traderr.ErrInvalidOrder)
		}
		if price != nil {
			return fmt.Errorf("%w: stop-loss order carries no limit price", traderr.ErrInvalidOrder)
		}
	case types.OrderKindTakeProfit:
		if !positive(price) {
			return fmt.Errorf("%w: take-profit order requires a positive price", traderr.ErrInvalidOrder)
		}
		if stop != nil {
			return fmt.Errorf("%w: take-profit order carries no stop price", traderr.ErrInvalidOrder)
		}
	case types.OrderKindOCO:
		if !positive(price) || !positive(stop) {
			return fmt.Errorf("%w: oco order requires positive limit and stop prices", traderr.ErrInvalidOrder)
		}
		// The stop leg must sit on the losing side of the limit leg,
		// otherwise both legs trigger at once.
		if side == types.OrderSideSell && !stop.LessThan(*price) {
			return fmt.Errorf("%w: oco sell requires stop below limit", traderr.ErrInvalidOrder)
		}
		if side == types.OrderSideBuy && !stop.GreaterThan(*price) {
			return fmt.Errorf("%w: oco buy requires stop above limit", traderr.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown order kind %q", traderr.ErrInvalidOrder, kind)
	}
	return nil
}

// SplitSymbol splits "BTC-USDT" into base and quote assets. It is the one
// symbol parser in the codebase; the execution simulator uses it too, so a
// symbol that passed submission can never fail to parse at settlement.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(symbol)), "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: symbol must be BASE-QUOTE", traderr.ErrInvalidOrder)
	}
	return parts[0], parts[1], nil
}
