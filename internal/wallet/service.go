package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service is the balance engine. Every mutation runs as one serializable
// transaction scoped to a single wallet row: lock the row, validate the
// invariant, write the new balance, append a ledger row, commit. Operations
// on different (user, asset) pairs never contend.
type Service struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

func NewService(pool *pgxpool.Pool, log *logrus.Logger) *Service {
	return &Service{pool: pool, log: log.WithField("component", "wallet")}
}

// Ref carries the idempotency reference for one engine call plus the
// triggering order/trade, recorded on the ledger row.
type Ref struct {
	Ref     string
	OrderID *string
	TradeID *string
}

type lockedWallet struct {
	balance decimal.Decimal
	locked  decimal.Decimal
	exists  bool
}

func (s *Service) lockRow(ctx context.Context, tx pgx.Tx, userID, asset string) (lockedWallet, error) {
	var w lockedWallet
	err := tx.QueryRow(ctx,
		"select balance, locked_balance from wallets where user_id = $1 and asset = $2 for update",
		userID, asset).Scan(&w.balance, &w.locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedWallet{balance: decimal.Zero, locked: decimal.Zero}, nil
		}
		return w, err
	}
	w.exists = true
	return w, nil
}

// appliedRef reports whether ref was already written, and the balance the
// ledger recorded for it. Consulted before every mutation so a crash-retry
// with the same ref has at-most-once effect.
func (s *Service) appliedRef(ctx context.Context, tx pgx.Tx, ref string) (decimal.Decimal, bool, error) {
	var after decimal.Decimal
	err := tx.QueryRow(ctx,
		"select balance_after from ledger_transactions where ref = $1", ref).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return after, true, nil
}

func (s *Service) writeRow(ctx context.Context, tx pgx.Tx, userID, asset string, w lockedWallet, balance, locked decimal.Decimal) error {
	if w.exists {
		_, err := tx.Exec(ctx,
			"update wallets set balance = $1, locked_balance = $2, updated_at = $3 where user_id = $4 and asset = $5",
			balance, locked, time.Now().UTC(), userID, asset)
		return err
	}
	_, err := tx.Exec(ctx,
		"insert into wallets (user_id, asset, balance, locked_balance, updated_at) values ($1, $2, $3, $4, $5)",
		userID, asset, balance, locked, time.Now().UTC())
	return err
}

func (s *Service) appendLedger(ctx context.Context, tx pgx.Tx, userID, asset string, et types.LedgerEntryType, amount, lockedDelta, before, after decimal.Decimal, ref Ref) error {
	_, err := tx.Exec(ctx, `
		insert into ledger_transactions
			(user_id, asset, entry_type, amount, locked_delta, balance_before, balance_after, ref, order_id, trade_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		userID, asset, string(et), amount, lockedDelta, before, after, ref.Ref, ref.OrderID, ref.TradeID, time.Now().UTC())
	return err
}

// AdjustTx credits or debits the available balance within the caller's
// transaction. Returns the new balance.
func (s *Service) AdjustTx(ctx context.Context, tx pgx.Tx, userID, asset string, delta decimal.Decimal, et types.LedgerEntryType, ref Ref) (decimal.Decimal, error) {
	if after, done, err := s.appliedRef(ctx, tx, ref.Ref); err != nil {
		return decimal.Zero, err
	} else if done {
		return after, nil
	}
	w, err := s.lockRow(ctx, tx, userID, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if err := checkAdjust(w.balance, w.locked, delta); err != nil {
		return decimal.Zero, err
	}
	next := w.balance.Add(delta)
	if err := s.writeRow(ctx, tx, userID, asset, w, next, w.locked); err != nil {
		return decimal.Zero, err
	}
	if err := s.appendLedger(ctx, tx, userID, asset, et, delta, decimal.Zero, w.balance, next, ref); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// LockTx reserves amount against open-order activity within the caller's
// transaction. The balance itself is unchanged; only locked_balance moves.
func (s *Service) LockTx(ctx context.Context, tx pgx.Tx, userID, asset string, amount decimal.Decimal, ref Ref) error {
	if _, done, err := s.appliedRef(ctx, tx, ref.Ref); err != nil {
		return err
	} else if done {
		return nil
	}
	w, err := s.lockRow(ctx, tx, userID, asset)
	if err != nil {
		return err
	}
	if err := checkLock(w.balance, w.locked, amount); err != nil {
		return err
	}
	next := w.locked.Add(amount)
	if err := s.writeRow(ctx, tx, userID, asset, w, w.balance, next); err != nil {
		return err
	}
	return s.appendLedger(ctx, tx, userID, asset, types.LedgerEntryTypeLock, decimal.Zero, amount, w.balance, w.balance, ref)
}

// UnlockTx releases a previously locked amount back to available.
func (s *Service) UnlockTx(ctx context.Context, tx pgx.Tx, userID, asset string, amount decimal.Decimal, ref Ref) error {
	if _, done, err := s.appliedRef(ctx, tx, ref.Ref); err != nil {
		return err
	} else if done {
		return nil
	}
	w, err := s.lockRow(ctx, tx, userID, asset)
	if err != nil {
		return err
	}
	if err := checkUnlock(w.locked, amount); err != nil {
		return err
	}
	next := w.locked.Sub(amount)
	if err := s.writeRow(ctx, tx, userID, asset, w, w.balance, next); err != nil {
		return err
	}
	return s.appendLedger(ctx, tx, userID, asset, types.LedgerEntryTypeUnlock, decimal.Zero, amount.Neg(), w.balance, w.balance, ref)
}

func (s *Service) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	return tx, nil
}

func (s *Service) commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	return nil
}

// Adjust runs AdjustTx in its own serializable transaction.
func (s *Service) Adjust(ctx context.Context, userID, asset string, delta decimal.Decimal, et types.LedgerEntryType, ref Ref) (decimal.Decimal, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)
	next, err := s.AdjustTx(ctx, tx, userID, asset, delta, et, ref)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.commit(ctx, tx); err != nil {
		return decimal.Zero, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "asset": asset, "delta": delta.String(), "ref": ref.Ref}).Debug("balance adjusted")
	return next, nil
}

// Lock runs LockTx in its own serializable transaction.
func (s *Service) Lock(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Ref) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.LockTx(ctx, tx, userID, asset, amount, ref); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

// Unlock runs UnlockTx in its own serializable transaction.
func (s *Service) Unlock(ctx context.Context, userID, asset string, amount decimal.Decimal, ref Ref) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.UnlockTx(ctx, tx, userID, asset, amount, ref); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

// Balances returns all wallet rows for a user. Plain snapshot read, no locks.
func (s *Service) Balances(ctx context.Context, userID string) ([]model.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		"select user_id, asset, balance, locked_balance, updated_at from wallets where user_id = $1 order by asset",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Wallet
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.UserID, &w.Asset, &w.Balance, &w.LockedBalance, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// LedgerFilter narrows ListLedger. Zero values mean "no filter".
type LedgerFilter struct {
	Asset     string
	EntryType types.LedgerEntryType
	Before    *time.Time
	Limit     int
}

// ListLedger returns the user's ledger history, newest first. Reads are
// lock-free snapshot reads.
func (s *Service) ListLedger(ctx context.Context, userID string, f LedgerFilter) ([]model.LedgerTransaction, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		select id, user_id, asset, entry_type, amount, locked_delta, balance_before, balance_after, ref, order_id, trade_id, created_at
		from ledger_transactions
		where user_id = $1
		  and ($2 = '' or asset = $2)
		  and ($3 = '' or entry_type = $3)
		  and ($4::timestamptz is null or created_at < $4)
		order by created_at desc, id desc
		limit $5`,
		userID, f.Asset, string(f.EntryType), f.Before, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerTransaction
	for rows.Next() {
		var t model.LedgerTransaction
		var et string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Asset, &et, &t.Amount, &t.LockedDelta, &t.BalanceBefore, &t.BalanceAfter, &t.Ref, &t.OrderID, &t.TradeID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.EntryType = types.LedgerEntryType(et)
		out = append(out, t)
	}
	return out, rows.Err()
}
