package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/orders"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/wallet"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine executes open orders against the simulated book. Each tick fetches
// the quote first, with no wallet or order rows locked, then walks the
// symbol's eligible orders in submission order and settles each fill in its
// own bounded transaction.
type Engine struct {
	pool     *pgxpool.Pool
	store    *orders.Store
	orders   *orders.Service
	wallet   *wallet.Service
	book     *marketdata.Book
	bus      *marketdata.Bus
	params   Params
	symbols  []string
	interval time.Duration
	log      *logrus.Entry
}

func NewEngine(pool *pgxpool.Pool, store *orders.Store, orderSvc *orders.Service, walletSvc *wallet.Service, book *marketdata.Book, bus *marketdata.Bus, params Params, symbols []string, interval time.Duration, log *logrus.Logger) *Engine {
	return &Engine{
		pool:     pool,
		store:    store,
		orders:   orderSvc,
		wallet:   walletSvc,
		book:     book,
		bus:      bus,
		params:   params,
		symbols:  symbols,
		interval: interval,
		log:      log.WithField("component", "simulator"),
	}
}

// Run ticks every interval until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range e.symbols {
				if err := e.tickSymbol(ctx, symbol); err != nil {
					e.log.WithError(err).WithField("symbol", symbol).Error("tick failed")
				}
			}
		}
	}
}

func (e *Engine) tickSymbol(ctx context.Context, symbol string) error {
	quote, err := e.book.Quote(symbol)
	if err != nil {
		if errors.Is(err, traderr.ErrStaleQuote) {
			// No fills against a stale price. The feed will catch up.
			return nil
		}
		return err
	}
	eligible, err := e.orders.Eligible(ctx, symbol, 0)
	if err != nil {
		return err
	}
	for _, o := range eligible {
		if _, ok := PlanFill(o, quote, e.params); !ok {
			continue
		}
		if err := e.settle(ctx, o.ID, quote); err != nil {
			e.log.WithError(err).WithField("order_id", o.ID).Error("settlement failed")
		}
	}
	return nil
}

// settle re-reads the order under a row lock, replans against the captured
// quote, and applies one fill: unlock the consumed reserve, move the traded
// assets, record the trade, advance the order under the version CAS. The
// snapshot from the eligibility scan is never trusted.
func (e *Engine) settle(ctx context.Context, orderID string, quote marketdata.Quote) error {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	order, err := e.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if !orders.CanTransition(order.Status, types.OrderStatusFilled) {
		// Cancelled or expired between the scan and the lock.
		return nil
	}
	plan, ok := PlanFill(order, quote, e.params)
	if !ok {
		return nil
	}

	base, quoteAsset, err := orders.SplitSymbol(order.Symbol)
	if err != nil {
		return err
	}
	tradeID := uuid.NewString()
	newFilled := order.FilledQty.Add(plan.Qty)
	final := newFilled.GreaterThanOrEqual(order.Qty)

	var lockedLeft decimal.Decimal
	if order.Side == types.OrderSideBuy {
		lockedLeft, err = e.settleBuy(ctx, tx, order, plan, tradeID, base, quoteAsset, final)
	} else {
		lockedLeft, err = e.settleSell(ctx, tx, order, plan, tradeID, base, quoteAsset, final)
	}
	if err != nil {
		if errors.Is(err, traderr.ErrInsufficientFunds) {
			tx.Rollback(ctx)
			return e.failOrder(ctx, orderID, err)
		}
		return err
	}

	status := types.OrderStatusPartiallyFilled
	if final {
		status = types.OrderStatusFilled
	}
	avg := nextAvgPrice(order.AvgFillPrice, order.FilledQty, plan.Price, plan.Qty)
	applied, err := e.store.ApplyFill(ctx, tx, order, newFilled, avg, lockedLeft, status)
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if !applied {
		return nil
	}

	trade := model.Trade{
		ID:         tradeID,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        plan.Qty,
		Price:      plan.Price,
		Fee:        plan.Fee,
		FeeAsset:   quoteAsset,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.store.CreateTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}

	e.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"trade_id": tradeID,
		"symbol":   order.Symbol,
		"side":     order.Side,
		"qty":      plan.Qty.String(),
		"price":    plan.Price.String(),
		"status":   status,
	}).Info("order filled")
	e.bus.Publish(marketdata.Event{Type: "fill", Data: trade})
	return nil
}

// settleBuy pays notional plus fee from the quote asset and credits the base
// quantity. The unlock releases exactly what this fill consumes; a final fill
// also releases whatever reserve padding is left over.
func (e *Engine) settleBuy(ctx context.Context, tx pgx.Tx, order model.Order, plan Plan, tradeID, base, quoteAsset string, final bool) (decimal.Decimal, error) {
	cost := plan.Notional.Add(plan.Fee)
	unlockAmt := cost
	if unlockAmt.GreaterThan(order.LockedRemained) {
		unlockAmt = order.LockedRemained
	}
	if final {
		unlockAmt = order.LockedRemained
	}
	if unlockAmt.GreaterThan(decimal.Zero) {
		ref := wallet.Ref{Ref: tradeID + ":unlock", OrderID: &order.ID, TradeID: &tradeID}
		if err := e.wallet.UnlockTx(ctx, tx, order.UserID, quoteAsset, unlockAmt, ref); err != nil {
			return decimal.Zero, err
		}
	}
	debitRef := wallet.Ref{Ref: tradeID + ":debit", OrderID: &order.ID, TradeID: &tradeID}
	if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, quoteAsset, plan.Notional.Neg(), types.LedgerEntryTypeTrade, debitRef); err != nil {
		return decimal.Zero, err
	}
	if plan.Fee.GreaterThan(decimal.Zero) {
		feeRef := wallet.Ref{Ref: tradeID + ":fee", OrderID: &order.ID, TradeID: &tradeID}
		if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, quoteAsset, plan.Fee.Neg(), types.LedgerEntryTypeFee, feeRef); err != nil {
			return decimal.Zero, err
		}
	}
	creditRef := wallet.Ref{Ref: tradeID + ":credit", OrderID: &order.ID, TradeID: &tradeID}
	if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, base, plan.Qty, types.LedgerEntryTypeTrade, creditRef); err != nil {
		return decimal.Zero, err
	}
	return order.LockedRemained.Sub(unlockAmt), nil
}

// settleSell hands over the base quantity and credits the proceeds net of
// fee. The reserve for a sell is the base quantity itself.
func (e *Engine) settleSell(ctx context.Context, tx pgx.Tx, order model.Order, plan Plan, tradeID, base, quoteAsset string, final bool) (decimal.Decimal, error) {
	unlockAmt := plan.Qty
	if unlockAmt.GreaterThan(order.LockedRemained) {
		unlockAmt = order.LockedRemained
	}
	if final {
		unlockAmt = order.LockedRemained
	}
	if unlockAmt.GreaterThan(decimal.Zero) {
		ref := wallet.Ref{Ref: tradeID + ":unlock", OrderID: &order.ID, TradeID: &tradeID}
		if err := e.wallet.UnlockTx(ctx, tx, order.UserID, base, unlockAmt, ref); err != nil {
			return decimal.Zero, err
		}
	}
	debitRef := wallet.Ref{Ref: tradeID + ":debit", OrderID: &order.ID, TradeID: &tradeID}
	if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, base, plan.Qty.Neg(), types.LedgerEntryTypeTrade, debitRef); err != nil {
		return decimal.Zero, err
	}
	proceeds := plan.Notional.Sub(plan.Fee)
	creditRef := wallet.Ref{Ref: tradeID + ":credit", OrderID: &order.ID, TradeID: &tradeID}
	if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, quoteAsset, proceeds, types.LedgerEntryTypeTrade, creditRef); err != nil {
		return decimal.Zero, err
	}
	if plan.Fee.GreaterThan(decimal.Zero) {
		feeRef := wallet.Ref{Ref: tradeID + ":fee", OrderID: &order.ID, TradeID: &tradeID}
		if _, err := e.wallet.AdjustTx(ctx, tx, order.UserID, quoteAsset, plan.Fee.Neg(), types.LedgerEntryTypeFee, feeRef); err != nil {
			return decimal.Zero, err
		}
	}
	return order.LockedRemained.Sub(unlockAmt), nil
}

// failOrder marks an order FAILED after a settlement debit was refused, and
// releases whatever reserve is still held. Runs in a fresh transaction since
// the settlement one rolled back.
func (e *Engine) failOrder(ctx context.Context, orderID string, cause error) error {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	order, err := e.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if !orders.CanTransition(order.Status, types.OrderStatusFailed) {
		return nil
	}
	if order.LockedRemained.GreaterThan(decimal.Zero) {
		ref := wallet.Ref{Ref: order.ID + ":fail:unlock", OrderID: &order.ID}
		if err := e.wallet.UnlockTx(ctx, tx, order.UserID, order.LockedAsset, order.LockedRemained, ref); err != nil {
			return err
		}
	}
	if _, err := e.store.SetStatus(ctx, tx, order, types.OrderStatusFailed, decimal.Zero); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	e.log.WithError(cause).WithField("order_id", orderID).Error("order failed during settlement")
	return nil
}
