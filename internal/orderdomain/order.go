// Package orderdomain holds the engine's core types: Order, Quote, the
// hub's normalized Tuple view, the routing strategy enum and the order
// state machine's transition table.
package orderdomain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is one state in the order lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRouting    Status = "routing"
	StatusProcessing Status = "processing"
	StatusBuilding   Status = "building"
	StatusSubmitted  Status = "submitted"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// transitions enumerates the edges of the state machine in §4.4. Any edge
// not listed here is rejected by Order.Transition.
var transitions = map[Status]map[Status]bool{
	StatusPending:    {StatusRouting: true, StatusFailed: true},
	StatusRouting:    {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusBuilding: true, StatusFailed: true},
	StatusBuilding:   {StatusBuilding: true, StatusSubmitted: true, StatusFailed: true},
	StatusSubmitted:  {StatusConfirmed: true, StatusFailed: true},
	StatusConfirmed:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
// A terminal `from` never permits a transition, matching the idempotent-sink
// requirement in spec.md section 8. StatusBuilding->StatusBuilding is
// allowed to represent a swap retry re-emitting `building` (S6).
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return transitions[from][to]
}

// RoutingStrategy is one of the four tagged scoring strategies the hub
// understands.
type RoutingStrategy string

const (
	StrategyBestPrice        RoutingStrategy = "BEST_PRICE"
	StrategyLowestSlippage   RoutingStrategy = "LOWEST_SLIPPAGE"
	StrategyHighestLiquidity RoutingStrategy = "HIGHEST_LIQUIDITY"
	StrategyFastestExecution RoutingStrategy = "FASTEST_EXECUTION"
)

// Normalize maps any unrecognized strategy tag to BEST_PRICE, matching the
// "unknown strategy degrades to BEST_PRICE with a warning" rule in
// spec.md section 4.2. The caller is responsible for emitting the warning.
func (s RoutingStrategy) Normalize() (RoutingStrategy, bool) {
	switch s {
	case StrategyBestPrice, StrategyLowestSlippage, StrategyHighestLiquidity, StrategyFastestExecution:
		return s, true
	default:
		return StrategyBestPrice, false
	}
}

// OrderType is the order's execution type. Only "market" is modeled.
type OrderType string

const OrderTypeMarket OrderType = "market"

// Order is the engine's central mutable record. It is owned exclusively by
// the scheduler and, while a swap job is in flight, by the venue worker
// running that job -- never both at once (single-writer-per-order, §5).
type Order struct {
	ID         string
	TokenIn    string
	TokenOut   string
	AmountIn   decimal.Decimal
	Type       OrderType
	Strategy   RoutingStrategy
	Status     Status
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Outcome fields, populated once routing/execution progress far enough.
	SelectedVenue string
	ExecutedPrice decimal.Decimal
	AmountOut     decimal.Decimal
	TxHash        string
	ErrorMessage  string
	ErrorCode     string
}

// NewOrder builds a pending order with a fresh id.
func NewOrder(tokenIn, tokenOut string, amountIn decimal.Decimal, strategy RoutingStrategy) *Order {
	now := time.Now()
	return &Order{
		ID:        uuid.NewString(),
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		Type:      OrderTypeMarket,
		Strategy:  strategy,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the order to `to` if the edge is legal, returning false
// (no-op) otherwise -- this is the idempotent-sink behavior required for
// already-terminal orders.
func (o *Order) Transition(to Status) bool {
	if !CanTransition(o.Status, to) {
		return false
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true
}

// Fail transitions the order to failed, recording the error taxonomy code
// and a human-readable message. A no-op if already terminal.
func (o *Order) Fail(code, message string) bool {
	if !o.Transition(StatusFailed) {
		return false
	}
	o.ErrorCode = code
	o.ErrorMessage = message
	return true
}

// Quote is a venue worker's priced offer for a swap, as defined in
// spec.md section 3.
type Quote struct {
	Venue      string
	Price      decimal.Decimal
	Output     decimal.Decimal
	Slippage   float64
	Liquidity  decimal.Decimal
	Fee        decimal.Decimal
	LatencyMs  int64
	ReceivedAt time.Time
}

// Tuple is the hub's normalized (P,O,S,L,D) view of a Quote. It is
// immutable once derived.
type Tuple struct {
	Price     decimal.Decimal
	Output    decimal.Decimal
	Slippage  float64
	Liquidity decimal.Decimal
	Venue     string
}

// TupleFromQuote derives the hub's normalized view from a raw quote.
func TupleFromQuote(q Quote) Tuple {
	return Tuple{
		Price:     q.Price,
		Output:    q.Output,
		Slippage:  q.Slippage,
		Liquidity: q.Liquidity,
		Venue:     q.Venue,
	}
}

// SwapResult is what a venue worker returns from a successful swap job.
type SwapResult struct {
	Venue         string
	TxHash        string
	AmountOut     decimal.Decimal
	ExecutedPrice decimal.Decimal
}
