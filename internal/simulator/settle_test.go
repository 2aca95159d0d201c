package simulator

import (
	"context"
	"testing"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/wallet"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTx(t *testing.T) (pgxmock.PgxPoolIface, pgx.Tx) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	return mock, tx
}

func expectRefMiss(mock pgxmock.PgxPoolIface, ref string) {
	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs(ref).
		WillReturnError(pgx.ErrNoRows)
}

func expectWalletRow(mock pgxmock.PgxPoolIface, userID, asset string, balance, locked decimal.Decimal) {
	mock.ExpectQuery("select balance, locked_balance from wallets").
		WithArgs(userID, asset).
		WillReturnRows(pgxmock.NewRows([]string{"balance", "locked_balance"}).AddRow(balance, locked))
}

// A final market-buy fill settles as: unlock the whole remaining reserve,
// debit the notional from the quote asset, debit the fee, credit the base
// quantity. Each movement lands as one ledger row under its own ref.
func TestSettleBuyFinalFill(t *testing.T) {
	mock, tx := newMockTx(t)
	e := &Engine{wallet: wallet.NewService(nil, logrus.New())}

	o := order(types.OrderSideBuy, types.OrderKindMarket, "0.5")
	o.UserID = "u1"
	o.LockedRemained = dec("50.2")
	plan, ok := PlanFill(o, quote("99.9", "100"), params("0.001", "10", "0"))
	require.True(t, ok)
	require.True(t, plan.Notional.Equal(dec("50.05")))

	// Unlock releases the entire remaining reserve on a final fill.
	expectRefMiss(mock, "T1:unlock")
	expectWalletRow(mock, "u1", "USDT", dec("1000"), dec("50.2"))
	mock.ExpectExec("update wallets set balance").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "u1", "USDT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("insert into ledger_transactions").
		WithArgs("u1", "USDT", "unlock", decimal.Zero, dec("50.2").Neg(), dec("1000"), dec("1000"),
			"T1:unlock", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Debit the notional.
	after1 := dec("1000").Add(plan.Notional.Neg())
	expectRefMiss(mock, "T1:debit")
	expectWalletRow(mock, "u1", "USDT", dec("1000"), dec("0"))
	mock.ExpectExec("update wallets set balance").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "u1", "USDT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("insert into ledger_transactions").
		WithArgs("u1", "USDT", "trade", plan.Notional.Neg(), decimal.Zero, dec("1000"), after1,
			"T1:debit", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Debit the fee as its own ledger row.
	after2 := after1.Add(plan.Fee.Neg())
	expectRefMiss(mock, "T1:fee")
	expectWalletRow(mock, "u1", "USDT", after1, dec("0"))
	mock.ExpectExec("update wallets set balance").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "u1", "USDT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("insert into ledger_transactions").
		WithArgs("u1", "USDT", "fee", plan.Fee.Neg(), decimal.Zero, after1, after2,
			"T1:fee", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Credit the base quantity; first fill creates the wallet row.
	expectRefMiss(mock, "T1:credit")
	mock.ExpectQuery("select balance, locked_balance from wallets").
		WithArgs("u1", "BTC").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("insert into wallets").
		WithArgs("u1", "BTC", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("insert into ledger_transactions").
		WithArgs("u1", "BTC", "trade", plan.Qty, decimal.Zero, decimal.Zero, decimal.Zero.Add(plan.Qty),
			"T1:credit", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lockedLeft, err := e.settleBuy(context.Background(), tx, o, plan, "T1", "BTC", "USDT", true)
	require.NoError(t, err)
	assert.True(t, lockedLeft.IsZero(), "got %s", lockedLeft)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Replaying a settlement whose refs are already in the ledger must not move
// any balance: every step short-circuits on the recorded ref.
func TestSettleBuyReplayIsIdempotent(t *testing.T) {
	mock, tx := newMockTx(t)
	e := &Engine{wallet: wallet.NewService(nil, logrus.New())}

	o := order(types.OrderSideBuy, types.OrderKindMarket, "0.5")
	o.UserID = "u1"
	o.LockedRemained = dec("50.2")
	plan, ok := PlanFill(o, quote("99.9", "100"), params("0.001", "10", "0"))
	require.True(t, ok)

	for _, ref := range []string{"T1:unlock", "T1:debit", "T1:fee", "T1:credit"} {
		mock.ExpectQuery("select balance_after from ledger_transactions").
			WithArgs(ref).
			WillReturnRows(pgxmock.NewRows([]string{"balance_after"}).AddRow(dec("949.89995")))
	}

	lockedLeft, err := e.settleBuy(context.Background(), tx, o, plan, "T1", "BTC", "USDT", true)
	require.NoError(t, err)
	assert.True(t, lockedLeft.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
