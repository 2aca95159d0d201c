package orders

import (
	"testing"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidateKind(t *testing.T) {
	cases := []struct {
		name        string
		kind        types.OrderKind
		side        types.OrderSide
		price, stop *decimal.Decimal
		ok          bool
	}{
		{"market bare", types.OrderKindMarket, types.OrderSideBuy, nil, nil, true},
		{"market with price", types.OrderKindMarket, types.OrderSideBuy, dptr("100"), nil, false},
		{"market with stop", types.OrderKindMarket, types.OrderSideSell, nil, dptr("90"), false},
		{"limit with price", types.OrderKindLimit, types.OrderSideBuy, dptr("100"), nil, true},
		{"limit missing price", types.OrderKindLimit, types.OrderSideBuy, nil, nil, false},
		{"limit zero price", types.OrderKindLimit, types.OrderSideBuy, dptr("0"), nil, false},
		{"limit with stop", types.OrderKindLimit, types.OrderSideBuy, dptr("100"), dptr("90"), false},
		{"stop loss with stop", types.OrderKindStopLoss, types.OrderSideSell, nil, dptr("90"), true},
		{"stop loss missing stop", types.OrderKindStopLoss, types.OrderSideSell, nil, nil, false},
		{"stop loss with price", types.OrderKindStopLoss, types.OrderSideSell, dptr("100"), dptr("90"), false},
		{"take profit with price", types.OrderKindTakeProfit, types.OrderSideSell, dptr("120"), nil, true},
		{"take profit missing price", types.OrderKindTakeProfit, types.OrderSideSell, nil, nil, false},
		{"oco sell stop below limit", types.OrderKindOCO, types.OrderSideSell, dptr("120"), dptr("90"), true},
		{"oco sell stop above limit", types.OrderKindOCO, types.OrderSideSell, dptr("90"), dptr("120"), false},
		{"oco buy stop above limit", types.OrderKindOCO, types.OrderSideBuy, dptr("90"), dptr("120"), true},
		{"oco buy stop below limit", types.OrderKindOCO, types.OrderSideBuy, dptr("120"), dptr("90"), false},
		{"oco missing stop", types.OrderKindOCO, types.OrderSideSell, dptr("120"), nil, false},
		{"unknown kind", types.OrderKind("iceberg"), types.OrderSideBuy, nil, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateKind(tc.kind, tc.side, tc.price, tc.stop)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, traderr.ErrInvalidOrder)
			}
		})
	}
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol("BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	base, quote, err = SplitSymbol(" eth-usdt ")
	require.NoError(t, err)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDT", quote)

	for _, bad := range []string{"", "BTC", "-USDT", "BTC-"} {
		_, _, err := SplitSymbol(bad)
		require.ErrorIs(t, err, traderr.ErrInvalidOrder, "symbol %q", bad)
	}
}
