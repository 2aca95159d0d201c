package simulator

import (
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
)

// Params is the slippage/fee model. FeeRate is a fraction of notional,
// charged in the quote asset. SlippageBps applies only to market-style
// executions (market orders and triggered stops); limit-style fills are
// price-protected by construction. MaxFillQty of zero means an order can
// fill entirely in one tick.
type Params struct {
	FeeRate     decimal.Decimal
	SlippageBps decimal.Decimal
	MaxFillQty  decimal.Decimal
}

// Plan is one intended fill: quantity at price, with the fee in quote terms.
type Plan struct {
	Qty      decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	Notional decimal.Decimal
}

var bpsDenom = decimal.NewFromInt(10000)

func slip(price decimal.Decimal, side types.OrderSide, bps decimal.Decimal) decimal.Decimal {
	adj := price.Mul(bps).Div(bpsDenom)
	if side == types.OrderSideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// executionPrice returns the price the order would fill at against q, or
// false when the quote does not cross the order.
func executionPrice(o model.Order, q marketdata.Quote, p Params) (decimal.Decimal, bool) {
	buy := o.Side == types.OrderSideBuy
	switch o.Kind {
	case types.OrderKindMarket:
		if buy {
			return slip(q.Ask, o.Side, p.SlippageBps), true
		}
		return slip(q.Bid, o.Side, p.SlippageBps), true
	case types.OrderKindLimit, types.OrderKindTakeProfit:
		if buy {
			if q.Ask.LessThanOrEqual(*o.Price) {
				return q.Ask, true
			}
		} else if q.Bid.GreaterThanOrEqual(*o.Price) {
			return q.Bid, true
		}
	case types.OrderKindStopLoss:
		if buy {
			if q.Ask.GreaterThanOrEqual(*o.StopPrice) {
				return slip(q.Ask, o.Side, p.SlippageBps), true
			}
		} else if q.Bid.LessThanOrEqual(*o.StopPrice) {
			return slip(q.Bid, o.Side, p.SlippageBps), true
		}
	case types.OrderKindOCO:
		// Limit leg first; the stop leg fires as a market-style exit. Filling
		// either leg completes the order, which retires the other leg.
		if buy {
			if q.Ask.LessThanOrEqual(*o.Price) {
				return q.Ask, true
			}
			if q.Ask.GreaterThanOrEqual(*o.StopPrice) {
				return slip(q.Ask, o.Side, p.SlippageBps), true
			}
		} else {
			if q.Bid.GreaterThanOrEqual(*o.Price) {
				return q.Bid, true
			}
			if q.Bid.LessThanOrEqual(*o.StopPrice) {
				return slip(q.Bid, o.Side, p.SlippageBps), true
			}
		}
	}
	return decimal.Zero, false
}

// PlanFill decides whether and how much of the order fills on this quote.
// Fills are capped by MaxFillQty, so a large order realizes across ticks in
// FIFO submission order.
func PlanFill(o model.Order, q marketdata.Quote, p Params) (Plan, bool) {
	remaining := o.RemainingQty()
	if remaining.LessThanOrEqual(decimal.Zero) {
		return Plan{}, false
	}
	price, ok := executionPrice(o, q, p)
	if !ok || price.LessThanOrEqual(decimal.Zero) {
		return Plan{}, false
	}
	qty := remaining
	if p.MaxFillQty.GreaterThan(decimal.Zero) && qty.GreaterThan(p.MaxFillQty) {
		qty = p.MaxFillQty
	}
	notional := price.Mul(qty)
	return Plan{
		Qty:      qty,
		Price:    price,
		Fee:      notional.Mul(p.FeeRate),
		Notional: notional,
	}, true
}

// nextAvgPrice folds one fill into the running average fill price.
func nextAvgPrice(avg, filled, fillPrice, fillQty decimal.Decimal) decimal.Decimal {
	total := filled.Add(fillQty)
	if total.LessThanOrEqual(decimal.Zero) {
		return avg
	}
	return avg.Mul(filled).Add(fillPrice.Mul(fillQty)).Div(total)
}
