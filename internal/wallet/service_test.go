package wallet

import (
	"context"
	"testing"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

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

func testService() *Service {
	return NewService(nil, logrus.New())
}

// A repeated settlement reference must return the recorded result without
// touching the wallet row again: the only statement the engine may issue is
// the ref lookup.
func TestAdjustTxRepeatedRefAppliesOnce(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("t1:debit").
		WillReturnRows(pgxmock.NewRows([]string{"balance_after"}).AddRow(dec("150")))

	next, err := svc.AdjustTx(context.Background(), tx, "u1", "USDT", dec("-25"), types.LedgerEntryTypeTrade, Ref{Ref: "t1:debit"})
	require.NoError(t, err)
	assert.True(t, next.Equal(dec("150")), "got %s", next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTxRepeatedRefIsNoop(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("o1:lock").
		WillReturnRows(pgxmock.NewRows([]string{"balance_after"}).AddRow(dec("100")))

	err := svc.LockTx(context.Background(), tx, "u1", "USDT", dec("40"), Ref{Ref: "o1:lock"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockTxRepeatedRefIsNoop(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("o1:cancel:unlock").
		WillReturnRows(pgxmock.NewRows([]string{"balance_after"}).AddRow(dec("100")))

	err := svc.UnlockTx(context.Background(), tx, "u1", "USDT", dec("40"), Ref{Ref: "o1:cancel:unlock"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The first application of a ref walks the full path: ref lookup misses, the
// row is locked, the new balance is written, and one ledger row is appended.
func TestAdjustTxFirstApplicationWrites(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("t1:debit").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("select balance, locked_balance from wallets").
		WithArgs("u1", "USDT").
		WillReturnRows(pgxmock.NewRows([]string{"balance", "locked_balance"}).AddRow(dec("100"), dec("40")))
	mock.ExpectExec("update wallets set balance").
		WithArgs(dec("75"), dec("40"), pgxmock.AnyArg(), "u1", "USDT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("insert into ledger_transactions").
		WithArgs("u1", "USDT", "trade", dec("-25"), decimal.Zero, dec("100"), dec("75"),
			"t1:debit", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	next, err := svc.AdjustTx(context.Background(), tx, "u1", "USDT", dec("-25"), types.LedgerEntryTypeTrade, Ref{Ref: "t1:debit"})
	require.NoError(t, err)
	assert.True(t, next.Equal(dec("75")))
	require.NoError(t, mock.ExpectationsWereMet())
}

// A refused lock must leave balance and locked untouched: after the
// invariant check fails, no update or ledger append may be issued.
func TestLockTxRefusalWritesNothing(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("o1:lock").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("select balance, locked_balance from wallets").
		WithArgs("u1", "USDT").
		WillReturnRows(pgxmock.NewRows([]string{"balance", "locked_balance"}).AddRow(dec("100"), dec("50")))

	err := svc.LockTx(context.Background(), tx, "u1", "USDT", dec("60"), Ref{Ref: "o1:lock"})
	require.ErrorIs(t, err, traderr.ErrInsufficientAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockTxRefusalWritesNothing(t *testing.T) {
	mock, tx := newMockTx(t)
	svc := testService()

	mock.ExpectQuery("select balance_after from ledger_transactions").
		WithArgs("o1:expire:unlock").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("select balance, locked_balance from wallets").
		WithArgs("u1", "USDT").
		WillReturnRows(pgxmock.NewRows([]string{"balance", "locked_balance"}).AddRow(dec("100"), dec("30")))

	err := svc.UnlockTx(context.Background(), tx, "u1", "USDT", dec("31"), Ref{Ref: "o1:expire:unlock"})
	require.ErrorIs(t, err, traderr.ErrInvalidUnlock)
	require.NoError(t, mock.ExpectationsWereMet())
}
