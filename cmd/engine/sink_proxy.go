package main

import "github.com/dexrouter/engine/internal/orderdomain"

// sinkProxy breaks the construction cycle between venue.Pool (which needs a
// venue.Sink up front) and scheduler.Scheduler (which needs the pool up
// front): the pool is built against the proxy, the scheduler is built
// against the pool, and the proxy's target is set once the scheduler
// exists. Every call after that point forwards directly.
type sinkProxy struct {
	target interface {
		Emit(e orderdomain.Event)
		QuoteSucceeded(orderID, venue string, q orderdomain.Quote) (int, int)
		QuoteFailed(orderID, venue string, err error) (int, int)
		SwapSucceeded(orderID string, result orderdomain.SwapResult)
		SwapFailed(orderID string, err error)
	}
}

func (p *sinkProxy) Emit(e orderdomain.Event) { p.target.Emit(e) }

func (p *sinkProxy) QuoteSucceeded(orderID, venue string, q orderdomain.Quote) (int, int) {
	return p.target.QuoteSucceeded(orderID, venue, q)
}

func (p *sinkProxy) QuoteFailed(orderID, venue string, err error) (int, int) {
	return p.target.QuoteFailed(orderID, venue, err)
}

func (p *sinkProxy) SwapSucceeded(orderID string, result orderdomain.SwapResult) {
	p.target.SwapSucceeded(orderID, result)
}

func (p *sinkProxy) SwapFailed(orderID string, err error) {
	p.target.SwapFailed(orderID, err)
}
