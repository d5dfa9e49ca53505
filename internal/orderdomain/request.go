package orderdomain

import (
	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/enginerr"
)

// maxAmountIn is the upper bound on an order's input amount (spec.md §6).
var maxAmountIn = decimal.NewFromInt(1_000_000)

// maxSlippage is the upper bound on a client-supplied slippage preference.
const maxSlippage = 0.5

// OrderRequest is the client-facing submission payload (spec.md §6,
// "Order submission (request side)").
type OrderRequest struct {
	TokenIn         string
	TokenOut        string
	AmountIn        decimal.Decimal
	OrderType       OrderType
	Slippage        *float64
	RoutingStrategy RoutingStrategy
	AutoExecute     *bool
}

// Validate checks the request against spec.md §6's constraints, returning a
// tagged validation error on the first violation found.
func (r OrderRequest) Validate() error {
	if r.TokenIn == "" {
		return enginerr.New(enginerr.CodeValidation, "tokenIn is required")
	}
	if r.TokenOut == "" {
		return enginerr.New(enginerr.CodeValidation, "tokenOut is required")
	}
	if r.TokenIn == r.TokenOut {
		return enginerr.New(enginerr.CodeValidation, "tokenOut must differ from tokenIn")
	}
	if r.AmountIn.Sign() <= 0 {
		return enginerr.New(enginerr.CodeValidation, "amountIn must be positive")
	}
	if r.AmountIn.GreaterThan(maxAmountIn) {
		return enginerr.New(enginerr.CodeValidation, "amountIn exceeds maximum of 1,000,000")
	}
	if r.OrderType != "" && r.OrderType != OrderTypeMarket {
		return enginerr.New(enginerr.CodeValidation, "orderType must be market")
	}
	if r.Slippage != nil && (*r.Slippage < 0 || *r.Slippage > maxSlippage) {
		return enginerr.New(enginerr.CodeValidation, "slippage must be between 0 and 0.5")
	}
	if r.RoutingStrategy != "" {
		if _, ok := r.RoutingStrategy.Normalize(); !ok {
			return enginerr.New(enginerr.CodeValidation, "unrecognized routingStrategy")
		}
	}
	return nil
}

// AutoExecuteOrDefault returns the request's AutoExecute preference,
// defaulting to true when unset.
func (r OrderRequest) AutoExecuteOrDefault() bool {
	if r.AutoExecute == nil {
		return true
	}
	return *r.AutoExecute
}

// StrategyOrDefault returns the request's routing strategy, defaulting to
// BEST_PRICE when unset.
func (r OrderRequest) StrategyOrDefault() RoutingStrategy {
	if r.RoutingStrategy == "" {
		return StrategyBestPrice
	}
	s, _ := r.RoutingStrategy.Normalize()
	return s
}

// NewOrderFromRequest builds a pending Order from a validated request.
func NewOrderFromRequest(r OrderRequest) *Order {
	o := NewOrder(r.TokenIn, r.TokenOut, r.AmountIn, r.StrategyOrDefault())
	if r.OrderType != "" {
		o.Type = r.OrderType
	}
	return o
}
