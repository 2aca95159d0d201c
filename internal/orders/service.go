package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/marketdata"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/wallet"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service owns the order lifecycle: submission locks the reserve, every
// terminal transition releases whatever is still locked, and all mutations go
// through the version CAS so a racing cancel and fill cannot both apply.
type Service struct {
	pool          *pgxpool.Pool
	store         *Store
	wallet        *wallet.Service
	quotes        marketdata.Provider
	feeRate       decimal.Decimal
	slippageBps   decimal.Decimal
	expiryHorizon time.Duration
	log           *logrus.Entry
}

func NewService(pool *pgxpool.Pool, store *Store, walletSvc *wallet.Service, quotes marketdata.Provider, feeRate, slippageBps decimal.Decimal, expiryHorizon time.Duration, log *logrus.Logger) *Service {
	return &Service{
		pool:          pool,
		store:         store,
		wallet:        walletSvc,
		quotes:        quotes,
		feeRate:       feeRate,
		slippageBps:   slippageBps,
		expiryHorizon: expiryHorizon,
		log:           log.WithField("component", "orders"),
	}
}

type SubmitRequest struct {
	UserID    string
	Symbol    string
	Side      types.OrderSide
	Kind      types.OrderKind
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
	Qty       decimal.Decimal
	ExpiresAt *time.Time
}

type SubmitResult struct {
	OrderID string            `json:"order_id"`
	Status  types.OrderStatus `json:"status"`
}

// padSlippage lifts a reference price to the worst price a market-style
// execution can fill at.
func (s *Service) padSlippage(price decimal.Decimal) decimal.Decimal {
	return price.Add(price.Mul(s.slippageBps).Div(decimal.NewFromInt(10000)))
}

// lockReserve computes what submission must reserve. Buys lock the quote
// asset at the worst price the order can fill at, padded by the fee rate and,
// for market-style executions, by slippage; sells lock the base quantity.
// Limit and take-profit fills are price-protected, so their reserve needs no
// slippage pad.
func (s *Service) lockReserve(req SubmitRequest, base, quote string) (asset string, amount decimal.Decimal, err error) {
	if req.Side == types.OrderSideSell {
		return base, req.Qty, nil
	}
	var ref decimal.Decimal
	switch req.Kind {
	case types.OrderKindMarket:
		q, qerr := s.quotes.Quote(req.Symbol)
		if qerr != nil {
			return "", decimal.Zero, qerr
		}
		ref = s.padSlippage(q.Ask)
	case types.OrderKindLimit, types.OrderKindTakeProfit:
		ref = *req.Price
	case types.OrderKindStopLoss:
		ref = s.padSlippage(*req.StopPrice)
	case types.OrderKindOCO:
		// Buy OCO stops above the limit, so the stop leg is the worst case,
		// and that leg executes market-style once triggered.
		ref = s.padSlippage(*req.StopPrice)
	}
	amount = ref.Mul(req.Qty).Mul(decimal.NewFromInt(1).Add(s.feeRate))
	return quote, amount, nil
}

// Submit validates the order, locks the reserve, and records the order as
// SUBMITTED. A lock refusal is persisted as a REJECTED order so the audit
// trail shows the attempt.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.UserID == "" {
		return SubmitResult{}, fmt.Errorf("%w: user required", traderr.ErrInvalidOrder)
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return SubmitResult{}, fmt.Errorf("%w: invalid side", traderr.ErrInvalidOrder)
	}
	if req.Qty.LessThanOrEqual(decimal.Zero) {
		return SubmitResult{}, fmt.Errorf("%w: qty must be positive", traderr.ErrInvalidOrder)
	}
	if err := validateKind(req.Kind, req.Side, req.Price, req.StopPrice); err != nil {
		return SubmitResult{}, err
	}
	base, quote, err := SplitSymbol(req.Symbol)
	if err != nil {
		return SubmitResult{}, err
	}
	lockAsset, lockAmount, err := s.lockReserve(req, base, quote)
	if err != nil {
		return SubmitResult{}, err
	}

	order := model.Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Symbol:         base + "-" + quote,
		Side:           req.Side,
		Kind:           req.Kind,
		Status:         types.OrderStatusPending,
		Price:          req.Price,
		StopPrice:      req.StopPrice,
		Qty:            req.Qty,
		FilledQty:      decimal.Zero,
		AvgFillPrice:   decimal.Zero,
		LockedAsset:    lockAsset,
		LockedRemained: decimal.Zero,
		Version:        1,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.CreateOrder(ctx, tx, order); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	lockRef := wallet.Ref{Ref: order.ID + ":lock", OrderID: &order.ID}
	if err := s.wallet.LockTx(ctx, tx, req.UserID, lockAsset, lockAmount, lockRef); err != nil {
		if errors.Is(err, traderr.ErrInsufficientAvailable) {
			if _, serr := s.store.SetStatus(ctx, tx, order, types.OrderStatusRejected, decimal.Zero); serr != nil {
				return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, serr)
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, cerr)
			}
			s.log.WithFields(logrus.Fields{"user_id": req.UserID, "order_id": order.ID}).Info("order rejected: insufficient available")
			return SubmitResult{OrderID: order.ID, Status: types.OrderStatusRejected}, err
		}
		return SubmitResult{}, err
	}
	if ok, err := s.store.SetStatus(ctx, tx, order, types.OrderStatusSubmitted, lockAmount); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	} else if !ok {
		return SubmitResult{}, fmt.Errorf("%w: submit lost version race", traderr.ErrInvalidTransition)
	}
	if err := tx.Commit(ctx); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	s.log.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     order.Side,
		"kind":     order.Kind,
		"qty":      order.Qty.String(),
		"locked":   lockAmount.String(),
	}).Info("order submitted")
	return SubmitResult{OrderID: order.ID, Status: types.OrderStatusSubmitted}, nil
}

// Cancel moves a non-terminal order to CANCELLED and releases the remaining
// reserve. Cancelling a terminal order is InvalidTransition: logged, no
// mutation.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: order %s", traderr.ErrNotFound, orderID)
		}
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: not your order", traderr.ErrForbidden)
	}
	if err := CheckTransition(order.Status, types.OrderStatusCanceled); err != nil {
		s.log.WithFields(logrus.Fields{"order_id": orderID, "status": order.Status}).Error("cancel on terminal order ignored")
		return err
	}
	if order.LockedRemained.GreaterThan(decimal.Zero) {
		ref := wallet.Ref{Ref: order.ID + ":cancel:unlock", OrderID: &order.ID}
		if err := s.wallet.UnlockTx(ctx, tx, order.UserID, order.LockedAsset, order.LockedRemained, ref); err != nil {
			return err
		}
	}
	ok, err := s.store.SetStatus(ctx, tx, order, types.OrderStatusCanceled, decimal.Zero)
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if !ok {
		// A fill committed between our snapshot and the CAS. The row lock
		// makes this unreachable in practice, but the guard stays.
		return fmt.Errorf("%w: order changed concurrently", traderr.ErrInvalidTransition)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "order_id": orderID}).Info("order cancelled")
	return nil
}

// ListOpen returns the user's non-terminal orders, newest first.
func (s *Service) ListOpen(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+`
		from orders
		where user_id = $1 and status in ('pending', 'submitted', 'partially_filled')
		order by created_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Eligible returns the symbol's fillable orders in submission order. The
// scan walks the (symbol, status, created_at) index so FIFO is the read
// order, not a sort.
func (s *Service) Eligible(ctx context.Context, symbol string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+`
		from orders
		where symbol = $1 and status in ('submitted', 'partially_filled')
		order by created_at asc, id asc
		limit $2`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// History returns terminal orders, paginated by created_at.
func (s *Service) History(ctx context.Context, userID string, before *time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		select `+orderColumns+`
		from orders
		where user_id = $1
		  and status in ('filled', 'canceled', 'rejected', 'expired', 'failed')
		  and ($2::timestamptz is null or created_at < $2)
		order by created_at desc
		limit $3`, userID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ExpireStale cancels orders whose expiry horizon has passed and releases
// their locks. Orders without an explicit expiry fall back to the configured
// horizon from submission time.
func (s *Service) ExpireStale(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		select id from orders
		where status in ('submitted', 'partially_filled')
		  and (
			(expires_at is not null and expires_at < now())
			or (expires_at is null and created_at < now() - make_interval(secs => $1))
		  )
		limit 100`, s.expiryHorizon.Seconds())
	if err != nil {
		return err
	}
	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.expireOne(ctx, id); err != nil {
			s.log.WithError(err).WithField("order_id", id).Error("expiry failed")
		}
	}
	return nil
}

func (s *Service) expireOne(ctx context.Context, orderID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := CheckTransition(order.Status, types.OrderStatusExpired); err != nil {
		// Raced with a fill or cancel; nothing left to release.
		return nil
	}
	if order.LockedRemained.GreaterThan(decimal.Zero) {
		ref := wallet.Ref{Ref: order.ID + ":expire:unlock", OrderID: &order.ID}
		if err := s.wallet.UnlockTx(ctx, tx, order.UserID, order.LockedAsset, order.LockedRemained, ref); err != nil {
			return err
		}
	}
	if _, err := s.store.SetStatus(ctx, tx, order, types.OrderStatusExpired, decimal.Zero); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	s.log.WithField("order_id", orderID).Info("order expired")
	return nil
}

// RunExpiry sweeps for expired orders until the context is canceled.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpireStale(ctx); err != nil {
				s.log.WithError(err).Error("expiry sweep failed")
			}
		}
	}
}
