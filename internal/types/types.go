package types

type OrderSide string

type OrderKind string

type OrderStatus string

type LedgerEntryType string

type TradingMode string

type AuditOutcome string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderKindMarket     OrderKind = "market"
	OrderKindLimit      OrderKind = "limit"
	OrderKindStopLoss   OrderKind = "stop_loss"
	OrderKindTakeProfit OrderKind = "take_profit"
	OrderKindOCO        OrderKind = "oco"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusFailed          OrderStatus = "failed"
)

const (
	LedgerEntryTypeDeposit  LedgerEntryType = "deposit"
	LedgerEntryTypeWithdraw LedgerEntryType = "withdraw"
	LedgerEntryTypeLock     LedgerEntryType = "lock"
	LedgerEntryTypeUnlock   LedgerEntryType = "unlock"
	LedgerEntryTypeTrade    LedgerEntryType = "trade"
	LedgerEntryTypeFee      LedgerEntryType = "fee"
	LedgerEntryTypeFaucet   LedgerEntryType = "faucet"
)

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

const (
	AuditOutcomeSwitched     AuditOutcome = "switched"
	AuditOutcomeRateLimited  AuditOutcome = "rate_limited"
	AuditOutcomeMismatch     AuditOutcome = "confirmation_mismatch"
	AuditOutcomeForbidden    AuditOutcome = "forbidden"
	AuditOutcomeInvalidToken AuditOutcome = "invalid_token"
)

// Terminal reports whether an order status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}
