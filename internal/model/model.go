package model

import (
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/shopspring/decimal"
)

// Wallet is one per-(user, asset) balance row. Rows are created on first
// deposit and never deleted; zero-balance rows stay as history anchors.
type Wallet struct {
	UserID        string          `json:"user_id"`
	Asset         string          `json:"asset"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available is the portion of the balance not reserved against open orders.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}

// LedgerTransaction is an immutable, append-only record of one
// balance-affecting event. Amount is the signed delta applied to Balance;
// LockedDelta is the signed delta applied to LockedBalance. Ref is the unique
// idempotency reference for the operation that produced the row.
type LedgerTransaction struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	Asset         string                `json:"asset"`
	EntryType     types.LedgerEntryType `json:"entry_type"`
	Amount        decimal.Decimal       `json:"amount"`
	LockedDelta   decimal.Decimal       `json:"locked_delta"`
	BalanceBefore decimal.Decimal       `json:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	Ref           string                `json:"ref"`
	OrderID       *string               `json:"order_id,omitempty"`
	TradeID       *string               `json:"trade_id,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

type Order struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	Kind           types.OrderKind   `json:"kind"`
	Status         types.OrderStatus `json:"status"`
	Price          *decimal.Decimal  `json:"price,omitempty"`
	StopPrice      *decimal.Decimal  `json:"stop_price,omitempty"`
	Qty            decimal.Decimal   `json:"qty"`
	FilledQty      decimal.Decimal   `json:"filled_qty"`
	AvgFillPrice   decimal.Decimal   `json:"avg_fill_price"`
	LockedAsset    string            `json:"locked_asset"`
	LockedRemained decimal.Decimal   `json:"locked_remaining"`
	Version        int64             `json:"version"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RemainingQty is the quantity still open for fills.
func (o Order) RemainingQty() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// Trade is one fill of an order, immutable once written.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       types.OrderSide `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	FeeAsset   string          `json:"fee_asset"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// ModeState is the single source of truth for a user's paper/live mode.
// It is owned by the mode gate and read only through its accessor.
type ModeState struct {
	UserID     string            `json:"user_id"`
	Mode       types.TradingMode `json:"mode"`
	SwitchedAt time.Time         `json:"switched_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ModeAuditRecord captures one mode-switch attempt, success or failure.
type ModeAuditRecord struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Actor      string             `json:"actor"`
	Origin     string             `json:"origin"`
	TargetMode types.TradingMode  `json:"target_mode"`
	Outcome    types.AuditOutcome `json:"outcome"`
	Detail     string             `json:"detail,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}
