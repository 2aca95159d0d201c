package simulator

import (
	"testing"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dptr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func quote(bid, ask string) marketdata.Quote {
	return marketdata.Quote{
		Symbol:    "BTC-USDT",
		Bid:       dec(bid),
		Ask:       dec(ask),
		Last:      dec(bid),
		Timestamp: time.Now().UTC(),
	}
}

func order(side types.OrderSide, kind types.OrderKind, qty string) model.Order {
	return model.Order{
		ID:           "o1",
		Symbol:       "BTC-USDT",
		Side:         side,
		Kind:         kind,
		Status:       types.OrderStatusSubmitted,
		Qty:          dec(qty),
		FilledQty:    decimal.Zero,
		AvgFillPrice: decimal.Zero,
	}
}

func params(fee, slipBps, maxQty string) Params {
	return Params{FeeRate: dec(fee), SlippageBps: dec(slipBps), MaxFillQty: dec(maxQty)}
}

func TestPlanFillMarket(t *testing.T) {
	p := params("0.001", "10", "0")

	t.Run("buy fills at ask plus slippage", func(t *testing.T) {
		plan, ok := PlanFill(order(types.OrderSideBuy, types.OrderKindMarket, "2"), quote("99", "100"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("100.1")), "got %s", plan.Price)
		assert.True(t, plan.Qty.Equal(dec("2")))
		assert.True(t, plan.Notional.Equal(dec("200.2")))
		assert.True(t, plan.Fee.Equal(dec("0.2002")))
	})

	t.Run("sell fills at bid minus slippage", func(t *testing.T) {
		plan, ok := PlanFill(order(types.OrderSideSell, types.OrderKindMarket, "1"), quote("100", "101"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("99.9")), "got %s", plan.Price)
	})
}

func TestPlanFillLimit(t *testing.T) {
	p := params("0", "10", "0")

	t.Run("buy crosses when ask at or under limit", func(t *testing.T) {
		o := order(types.OrderSideBuy, types.OrderKindLimit, "1")
		o.Price = dptr("100")
		plan, ok := PlanFill(o, quote("99", "100"), p)
		require.True(t, ok)
		// Limit fills are price-protected: no slippage on top.
		assert.True(t, plan.Price.Equal(dec("100")))

		_, ok = PlanFill(o, quote("100", "100.01"), p)
		assert.False(t, ok)
	})

	t.Run("sell crosses when bid at or over limit", func(t *testing.T) {
		o := order(types.OrderSideSell, types.OrderKindLimit, "1")
		o.Price = dptr("100")
		plan, ok := PlanFill(o, quote("100.5", "101"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("100.5")))

		_, ok = PlanFill(o, quote("99.99", "100.5"), p)
		assert.False(t, ok)
	})
}

func TestPlanFillStopLoss(t *testing.T) {
	p := params("0", "10", "0")

	t.Run("sell triggers when bid falls to stop", func(t *testing.T) {
		o := order(types.OrderSideSell, types.OrderKindStopLoss, "1")
		o.StopPrice = dptr("90")
		plan, ok := PlanFill(o, quote("90", "90.5"), p)
		require.True(t, ok)
		// Triggered stops execute market-style, slippage applies.
		assert.True(t, plan.Price.Equal(dec("89.91")), "got %s", plan.Price)

		_, ok = PlanFill(o, quote("90.01", "90.5"), p)
		assert.False(t, ok)
	})

	t.Run("buy triggers when ask rises to stop", func(t *testing.T) {
		o := order(types.OrderSideBuy, types.OrderKindStopLoss, "1")
		o.StopPrice = dptr("110")
		plan, ok := PlanFill(o, quote("109", "110"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("110.11")), "got %s", plan.Price)
	})
}

func TestPlanFillOCO(t *testing.T) {
	p := params("0", "0", "0")
	o := order(types.OrderSideSell, types.OrderKindOCO, "1")
	o.Price = dptr("120")
	o.StopPrice = dptr("90")

	t.Run("limit leg wins on the upside", func(t *testing.T) {
		plan, ok := PlanFill(o, quote("120", "120.5"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("120")))
	})

	t.Run("stop leg fires on the downside", func(t *testing.T) {
		plan, ok := PlanFill(o, quote("89.5", "90"), p)
		require.True(t, ok)
		assert.True(t, plan.Price.Equal(dec("89.5")))
	})

	t.Run("neither leg inside the band", func(t *testing.T) {
		_, ok := PlanFill(o, quote("100", "100.5"), p)
		assert.False(t, ok)
	})
}

func TestPlanFillPartialCap(t *testing.T) {
	p := params("0.001", "0", "3")
	o := order(types.OrderSideBuy, types.OrderKindMarket, "10")
	o.FilledQty = dec("8")

	plan, ok := PlanFill(o, quote("99", "100"), p)
	require.True(t, ok)
	// Remaining 2 is under the per-tick cap of 3.
	assert.True(t, plan.Qty.Equal(dec("2")))

	o.FilledQty = dec("2")
	plan, ok = PlanFill(o, quote("99", "100"), p)
	require.True(t, ok)
	assert.True(t, plan.Qty.Equal(dec("3")))
}

func TestPlanFillNothingRemaining(t *testing.T) {
	o := order(types.OrderSideBuy, types.OrderKindMarket, "1")
	o.FilledQty = dec("1")
	_, ok := PlanFill(o, quote("99", "100"), params("0", "0", "0"))
	assert.False(t, ok)
}

func TestNextAvgPrice(t *testing.T) {
	avg := nextAvgPrice(decimal.Zero, decimal.Zero, dec("100"), dec("2"))
	assert.True(t, avg.Equal(dec("100")))

	avg = nextAvgPrice(avg, dec("2"), dec("110"), dec("2"))
	assert.True(t, avg.Equal(dec("105")), "got %s", avg)

	// Zero fill leaves the average untouched.
	avg = nextAvgPrice(dec("105"), decimal.Zero, dec("0"), decimal.Zero)
	assert.True(t, avg.Equal(dec("105")))
}
