package orders

import (
	"fmt"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"
)

// transitions is the full lifecycle: every non-terminal state can reach
// canceled, and terminal states have no outgoing edges, so any event against
// them fails CanTransition and is handled as a logged no-op by callers.
var transitions = map[types.OrderStatus][]types.OrderStatus{
	types.OrderStatusPending: {
		types.OrderStatusSubmitted,
		types.OrderStatusRejected,
		types.OrderStatusCanceled,
	},
	types.OrderStatusSubmitted: {
		types.OrderStatusPartiallyFilled,
		types.OrderStatusFilled,
		types.OrderStatusCanceled,
		types.OrderStatusExpired,
		types.OrderStatusFailed,
	},
	types.OrderStatusPartiallyFilled: {
		types.OrderStatusPartiallyFilled,
		types.OrderStatusFilled,
		types.OrderStatusCanceled,
		types.OrderStatusExpired,
		types.OrderStatusFailed,
	},
}

func CanTransition(from, to types.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns InvalidTransition when the edge does not exist.
func CheckTransition(from, to types.OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", traderr.ErrInvalidTransition, from, to)
	}
	return nil
}
