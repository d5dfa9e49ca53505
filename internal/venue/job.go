package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/orderdomain"
)

// JobType distinguishes the two job kinds a venue worker runs.
type JobType string

const (
	JobQuote JobType = "quote"
	JobSwap  JobType = "swap"
)

// Job is a unit of work enqueued onto one venue's queue. Venue is always
// the owning worker's venue; for a quote job it is the venue being quoted,
// for a swap job it is the selected venue.
type Job struct {
	Type     JobType
	OrderID  string
	Venue    string
	TokenIn  string
	TokenOut string
	Amount   decimal.Decimal
}

// Simulator is the thin venue-simulator contract from spec.md section 6.
// It is opaque to the core: an external collaborator computing AMM prices
// and (simulated) swap execution.
type Simulator interface {
	GetQuote(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.Quote, error)
	ExecuteSwap(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.SwapResult, error)
}

// Sink receives events and outcome notifications as a worker progresses
// through a job. The scheduler implements Sink: its outcome methods record
// quote and swap completions, and its Emit forwards events to the session
// broadcaster (C5).
type Sink interface {
	// Emit publishes a staged progress event for broadcast to subscribed
	// sessions (spec.md section 6's status payload table).
	Emit(e orderdomain.Event)

	// QuoteSucceeded reports a completed quote job to the scheduler. It
	// returns the collection's received/expected counts so the caller can
	// attach them to the quote_received event it emits.
	QuoteSucceeded(orderID, venue string, q orderdomain.Quote) (received, expected int)
	// QuoteFailed reports an exhausted quote job to the scheduler, returning
	// received/expected for the same reason as QuoteSucceeded.
	QuoteFailed(orderID, venue string, err error) (received, expected int)

	// SwapSucceeded reports a confirmed swap to the scheduler.
	SwapSucceeded(orderID string, result orderdomain.SwapResult)
	// SwapFailed reports an exhausted swap job to the scheduler.
	SwapFailed(orderID string, err error)
}
