package orders

import (
	"context"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const orderColumns = "id, user_id, symbol, side, kind, status, price, stop_price, qty, filled_qty, avg_fill_price, locked_asset, locked_remaining, version, expires_at, created_at, updated_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, kind, status string
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &kind, &status, &o.Price, &o.StopPrice,
		&o.Qty, &o.FilledQty, &o.AvgFillPrice, &o.LockedAsset, &o.LockedRemained, &o.Version,
		&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Kind = types.OrderKind(kind)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, tx pgx.Tx, o model.Order) error {
	_, err := tx.Exec(ctx, `
		insert into orders (id, user_id, symbol, side, kind, status, price, stop_price, qty, filled_qty, avg_fill_price, locked_asset, locked_remaining, version, expires_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.UserID, o.Symbol, string(o.Side), string(o.Kind), string(o.Status), o.Price, o.StopPrice,
		o.Qty, o.FilledQty, o.AvgFillPrice, o.LockedAsset, o.LockedRemained, o.Version,
		o.ExpiresAt, time.Now().UTC(), time.Now().UTC())
	return err
}

func (s *Store) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (model.Order, error) {
	return scanOrder(tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", orderID))
}

// ApplyFill advances the fill state guarded by the version CAS. Returns false
// when the guard misses, meaning a concurrent transition won the race.
func (s *Store) ApplyFill(ctx context.Context, tx pgx.Tx, o model.Order, filledQty, avgPrice, lockedRemaining decimal.Decimal, status types.OrderStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		update orders
		set filled_qty = $1, avg_fill_price = $2, locked_remaining = $3, status = $4,
		    version = version + 1, updated_at = $5
		where id = $6 and version = $7`,
		filledQty, avgPrice, lockedRemaining, string(status), time.Now().UTC(), o.ID, o.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus moves an order to status guarded by the version CAS.
func (s *Store) SetStatus(ctx context.Context, tx pgx.Tx, o model.Order, status types.OrderStatus, lockedRemaining decimal.Decimal) (bool, error) {
	tag, err := tx.Exec(ctx, `
		update orders
		set status = $1, locked_remaining = $2, version = version + 1, updated_at = $3
		where id = $4 and version = $5`,
		string(status), lockedRemaining, time.Now().UTC(), o.ID, o.Version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreateTrade(ctx context.Context, tx pgx.Tx, t model.Trade) error {
	_, err := tx.Exec(ctx, `
		insert into trades (id, order_id, user_id, symbol, side, qty, price, fee, fee_asset, executed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.OrderID, t.UserID, t.Symbol, string(t.Side), t.Qty, t.Price, t.Fee, t.FeeAsset, t.ExecutedAt)
	return err
}
