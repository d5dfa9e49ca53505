// Package scheduler implements the scheduler (C4): the component that
// fans a validated order out to every configured venue, collects quotes
// under the completion rule of spec.md section 4.3, routes the winner
// through the hub, and dispatches the swap job -- the orchestrator every
// other core component is wired through.
package scheduler

import (
	"context"
	"time"

	"github.com/dexrouter/engine/internal/broadcaster"
	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/enginerr"
	"github.com/dexrouter/engine/internal/hub"
	"github.com/dexrouter/engine/internal/orderdomain"
	"github.com/dexrouter/engine/internal/quotestore"
	"github.com/dexrouter/engine/internal/repository"
	"github.com/dexrouter/engine/internal/stats"
	"github.com/dexrouter/engine/internal/venue"
	"github.com/dexrouter/engine/pkg/observability"
)

// minQuotesForEarlyCompletion is rule 2's floor: the deadline may close a
// collection early only once at least this many valid quotes are in hand
// (spec.md section 4.3).
const minQuotesForEarlyCompletion = 2

// Scheduler owns the full lifecycle of an order from submission through a
// terminal state. It implements venue.Sink so the venue pool can report
// job outcomes directly back into the pipeline.
type Scheduler struct {
	cfg   config.EngineConfig
	store *quotestore.Store
	hub   *hub.Hub
	pool  *venue.Pool
	bus   *broadcaster.Broadcaster
	stats *stats.Registry
	repo  repository.OrderRepository
	cache repository.ActiveOrderCache

	logger  *observability.Logger
	metrics *observability.MetricsProvider

	locks *keyLock

	// orders tracks live Order records the scheduler is actively driving.
	// Access is always guarded by locks.withLock(orderID, ...).
	orders map[string]*orderEntry
}

// orderEntry bundles an order with the bookkeeping the scheduler
// needs across the lifetime of one quote collection.
type orderEntry struct {
	order     *orderdomain.Order
	finalized bool
}

// New builds a Scheduler wired to its collaborators. The caller is
// responsible for starting and stopping the venue pool.
func New(cfg config.EngineConfig, store *quotestore.Store, h *hub.Hub, pool *venue.Pool,
	bus *broadcaster.Broadcaster, reg *stats.Registry, repo repository.OrderRepository,
	cache repository.ActiveOrderCache, logger *observability.Logger, metrics *observability.MetricsProvider) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		hub:     h,
		pool:    pool,
		bus:     bus,
		stats:   reg,
		repo:    repo,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		locks:   newKeyLock(),
		orders:  make(map[string]*orderEntry),
	}
}

// Order looks up an order, preferring the active-order cache and falling
// back to the repository for terminal or evicted orders.
func (s *Scheduler) Order(ctx context.Context, id string) (*orderdomain.Order, error) {
	if order, err := s.cache.GetActiveOrder(ctx, id); err == nil {
		return order, nil
	}
	return s.repo.GetOrderByID(ctx, id)
}

// Orders returns a page of historical orders from the repository.
func (s *Scheduler) Orders(ctx context.Context, limit, offset int) ([]*orderdomain.Order, error) {
	return s.repo.GetOrders(ctx, limit, offset)
}

// Stats returns a snapshot of cumulative engine statistics (spec.md §4.6).
func (s *Scheduler) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

// Submit validates and admits a new order request, persists it, and starts
// quote collection across every configured venue. It returns the created
// order so the caller (the demo gateway) can respond with its id.
func (s *Scheduler) Submit(ctx context.Context, req orderdomain.OrderRequest) (*orderdomain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order := orderdomain.NewOrderFromRequest(req)

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, enginerr.Wrap(enginerr.CodeInternal, "failed to persist order", err)
	}
	_ = s.cache.SetActiveOrder(ctx, order)

	s.bus.MarkKnown(order.ID)
	s.metrics.RecordOrderStarted(ctx)

	s.locks.withLock(order.ID, func() {
		s.orders[order.ID] = &orderEntry{order: order}
	})

	s.startQuoteCollection(ctx, order)
	return order, nil
}

// startQuoteCollection opens a pending collection for order and enqueues a
// quote job on every configured venue, per spec.md section 4.1/4.3. Venues
// that are currently circuit-broken are still counted toward
// expected_count but are immediately recorded as a failure, with a
// quote_failed event, matching the
// "unhealthy venues stay in the denominator" rule (SPEC_FULL.md section 4).
func (s *Scheduler) startQuoteCollection(ctx context.Context, order *orderdomain.Order) {
	venues := s.pool.Venues()
	s.store.Open(order.ID, order.Strategy, len(venues))

	s.transition(ctx, order, orderdomain.StatusRouting)

	s.bus.Publish(orderdomain.Event{
		OrderID: order.ID, Type: orderdomain.EventPending, Timestamp: time.Now(),
		TotalExpected: len(venues),
	})

	timer := time.AfterFunc(s.cfg.QuoteDeadline, func() {
		s.onDeadline(order.ID)
	})
	s.store.SetDeadlineTimer(order.ID, timer)

	for _, v := range venues {
		if !s.pool.Healthy(v) {
			circuitErr := enginerr.New(enginerr.CodeVenueTransient, "venue circuit open")
			received, expected := s.QuoteFailed(order.ID, v, circuitErr)
			s.bus.Publish(orderdomain.Event{
				OrderID: order.ID, Type: orderdomain.EventQuoteFailed, Dex: v,
				Error: circuitErr.Error(), Timestamp: time.Now(),
				QuotesReceived: received, TotalExpected: expected,
			})
			continue
		}
		s.pool.Enqueue(v, venue.Job{
			Type: venue.JobQuote, OrderID: order.ID, Venue: v,
			TokenIn: order.TokenIn, TokenOut: order.TokenOut, Amount: order.AmountIn,
		})
	}
}

// Emit implements venue.Sink: every staged progress event from a worker is
// forwarded to the broadcaster verbatim.
func (s *Scheduler) Emit(e orderdomain.Event) {
	s.bus.Publish(e)
}

// QuoteSucceeded implements venue.Sink.
func (s *Scheduler) QuoteSucceeded(orderID, venueName string, q orderdomain.Quote) (int, int) {
	ctx := context.Background()
	s.metrics.RecordQuote(ctx, venueName, "success")
	s.stats.RecordQuoteSuccess(venueName)

	received, expected, ok := s.store.AddQuote(orderID, q)
	if !ok {
		return received, expected
	}
	s.maybeComplete(ctx, orderID, received, expected)
	return received, expected
}

// QuoteFailed implements venue.Sink.
func (s *Scheduler) QuoteFailed(orderID, venueName string, _ error) (int, int) {
	ctx := context.Background()
	s.metrics.RecordQuote(ctx, venueName, "failure")
	s.stats.RecordQuoteFailure(venueName)

	received, expected, ok := s.store.RecordFailure(orderID)
	if !ok {
		return received, expected
	}
	s.maybeComplete(ctx, orderID, received, expected)
	return received, expected
}

// maybeComplete applies completion rule 1 (received_count >= expected_count)
// immediately after every quote arrival, per spec.md section 4.3.
func (s *Scheduler) maybeComplete(ctx context.Context, orderID string, received, expected int) {
	if received < expected {
		return
	}
	s.finishCollection(ctx, orderID)
}

// onDeadline applies completion rule 2: if the deadline elapses with at
// least minQuotesForEarlyCompletion valid quotes in hand, collection closes
// early; otherwise the order fails with deadline_exceeded.
func (s *Scheduler) onDeadline(orderID string) {
	ctx := context.Background()
	snap, ok := s.store.Snapshot(orderID)
	if !ok {
		return
	}

	validQuotes := 0
	for _, q := range snap.Quotes {
		if q.Output.IsPositive() {
			validQuotes++
		}
	}

	if validQuotes >= minQuotesForEarlyCompletion {
		s.finishCollection(ctx, orderID)
		return
	}

	s.failCollection(ctx, orderID, enginerr.CodeDeadlineExceeded, "quote collection deadline exceeded")
}

// finishCollection runs the post-collection algorithm of spec.md section
// 4.3 exactly once per order: validate, emit quotes_collected, analyze,
// select, emit dex_selected, and dispatch the swap job. It is idempotent
// against concurrent triggers (rule 1 firing on the final quote at the
// same moment the deadline timer fires) via the order's per-key lock and
// the quotestore's one-shot Close.
func (s *Scheduler) finishCollection(ctx context.Context, orderID string) {
	s.locks.withLock(orderID, func() {
		entry, ok := s.orders[orderID]
		if !ok || entry.finalized {
			return
		}

		snap, ok := s.store.Snapshot(orderID)
		if !ok {
			return
		}
		s.store.Close(orderID)
		entry.finalized = true

		collectionDuration := time.Since(snap.StartedAt)
		s.metrics.RecordQuoteCollection(ctx, collectionDuration)

		tuples := make([]orderdomain.Tuple, 0, len(snap.Quotes))
		payloads := make([]orderdomain.QuotePayload, 0, len(snap.Quotes))
		for _, q := range snap.Quotes {
			tuples = append(tuples, orderdomain.TupleFromQuote(q))
			payloads = append(payloads, orderdomain.QuotePayload{
				Price: q.Price, EstimatedOutput: q.Output, Slippage: q.Slippage, Liquidity: q.Liquidity,
			})
		}

		if len(tuples) == 0 {
			s.finalizeFailure(ctx, entry, enginerr.CodeNoQuotes, "no valid quotes received", collectionDuration)
			return
		}

		validation := s.hub.Validate(tuples)
		if !validation.Valid {
			s.finalizeFailure(ctx, entry, enginerr.CodeValidation, "quote validation failed", collectionDuration)
			return
		}

		s.bus.Publish(orderdomain.Event{
			OrderID: orderID, Type: orderdomain.EventQuotesCollected, Timestamp: time.Now(),
			Quotes: payloads, ValidQuotes: len(tuples), TotalReceived: snap.Received,
		})

		s.transition(ctx, entry.order, orderdomain.StatusProcessing)

		analysis, err := s.hub.Analyze(tuples)
		if err != nil {
			s.finalizeFailure(ctx, entry, enginerr.CodeNoQuotes, "market analysis failed", collectionDuration)
			return
		}
		s.stats.RecordAnalysis(stats.AnalysisSnapshot{
			OrderID: orderID, TotalQuotes: analysis.TotalQuotes,
			Recommendation: analysis.Recommendation.Venue, Timestamp: analysis.Timestamp,
		})

		winner, err := s.hub.Select(tuples, snap.Strategy, nil)
		if err != nil {
			s.finalizeFailure(ctx, entry, enginerr.CodeNoQuotes, "route selection failed", collectionDuration)
			return
		}
		s.metrics.RecordStrategySelection(ctx, string(snap.Strategy))
		s.stats.RecordStrategyUsage(snap.Strategy)

		entry.order.SelectedVenue = winner.Venue
		entry.order.ExecutedPrice = winner.Price
		_ = s.repo.UpdateOrderStatus(ctx, orderID, entry.order.Status, map[string]interface{}{
			"selectedVenue": winner.Venue,
		})

		alternatives := make([]orderdomain.RoutePayload, 0, len(analysis.StrategyAnalysis))
		for strat, tuple := range analysis.StrategyAnalysis {
			if strat == snap.Strategy {
				continue
			}
			alternatives = append(alternatives, orderdomain.RoutePayload{
				Dex: tuple.Venue, EstimatedOutput: tuple.Output, Slippage: tuple.Slippage,
				Liquidity: tuple.Liquidity, Price: tuple.Price,
			})
		}

		s.bus.Publish(orderdomain.Event{
			OrderID: orderID, Type: orderdomain.EventDexSelected, Timestamp: time.Now(),
			Strategy: snap.Strategy,
			SelectedRoute: &orderdomain.RoutePayload{
				Dex: winner.Venue, EstimatedOutput: winner.Output, Slippage: winner.Slippage,
				Liquidity: winner.Liquidity, Price: winner.Price,
			},
			MarketMetrics:     analysis.MarketMetrics,
			AlternativeRoutes: alternatives,
		})

		s.transition(ctx, entry.order, orderdomain.StatusBuilding)

		s.pool.Enqueue(winner.Venue, venue.Job{
			Type: venue.JobSwap, OrderID: orderID, Venue: winner.Venue,
			TokenIn: entry.order.TokenIn, TokenOut: entry.order.TokenOut, Amount: entry.order.AmountIn,
		})
	})
}

// failCollection closes a pending collection and marks its order failed,
// used for rule-2 deadline exhaustion, which happens outside finishCollection's
// normal per-quote trigger path but must observe the same finalize-once
// guarantee.
func (s *Scheduler) failCollection(ctx context.Context, orderID string, code enginerr.Code, message string) {
	s.locks.withLock(orderID, func() {
		entry, ok := s.orders[orderID]
		if !ok || entry.finalized {
			return
		}
		snap, _ := s.store.Snapshot(orderID)
		s.store.Close(orderID)
		entry.finalized = true
		s.finalizeFailure(ctx, entry, code, message, time.Since(snap.StartedAt))
	})
}

// finalizeFailure transitions an order to failed, persists the outcome,
// publishes the failed event, and records statistics. Callers must already
// hold the order's per-key lock.
func (s *Scheduler) finalizeFailure(ctx context.Context, entry *orderEntry, code enginerr.Code, message string, collectionDuration time.Duration) {
	entry.order.Fail(string(code), message)
	_ = s.repo.UpdateOrderStatus(ctx, entry.order.ID, orderdomain.StatusFailed, map[string]interface{}{
		"errorCode": string(code), "errorMessage": message,
	})
	if order, err := s.repo.GetOrderByID(ctx, entry.order.ID); err == nil {
		_ = s.cache.UpdateActiveOrder(ctx, order)
	}

	s.bus.Publish(orderdomain.Event{
		OrderID: entry.order.ID, Type: orderdomain.EventFailed, Timestamp: time.Now(),
		Error: string(code), Message: message,
	})

	s.metrics.RecordOrderTerminal(ctx, string(orderdomain.StatusFailed), string(code))
	s.stats.RecordOrderCompletion(collectionDuration, false)
	s.locks.release(entry.order.ID)
	delete(s.orders, entry.order.ID)
}

// SwapSucceeded implements venue.Sink: the swap job confirmed, so the order
// reaches its terminal success state.
func (s *Scheduler) SwapSucceeded(orderID string, result orderdomain.SwapResult) {
	ctx := context.Background()
	s.locks.withLock(orderID, func() {
		entry, ok := s.orders[orderID]
		if !ok || entry.finalized {
			return
		}
		entry.finalized = true

		entry.order.AmountOut = result.AmountOut
		entry.order.ExecutedPrice = result.ExecutedPrice
		entry.order.TxHash = result.TxHash
		entry.order.Transition(orderdomain.StatusConfirmed)

		if order, err := s.repo.GetOrderByID(ctx, orderID); err == nil {
			_ = s.cache.UpdateActiveOrder(ctx, order)
		}

		s.metrics.RecordVenueJob(ctx, result.Venue, string(venue.JobSwap), "success", 0)
		s.metrics.RecordOrderTerminal(ctx, string(orderdomain.StatusConfirmed), "")
		s.stats.RecordOrderCompletion(0, true)

		s.locks.release(orderID)
		delete(s.orders, orderID)
	})
}

// SwapFailed implements venue.Sink: the swap job exhausted its retries, so
// the order fails with swap_rejected.
func (s *Scheduler) SwapFailed(orderID string, _ error) {
	ctx := context.Background()
	s.locks.withLock(orderID, func() {
		entry, ok := s.orders[orderID]
		if !ok || entry.finalized {
			return
		}
		s.stats.RecordSwapRetry()
		s.metrics.RecordSwapRetry(ctx, entry.order.SelectedVenue)
		s.finalizeFailure(ctx, entry, enginerr.CodeSwapRejected, "swap execution rejected", 0)
	})
}

// Cancel stops quote collection for orderID if it is still in progress.
// A swap already dispatched to a venue worker cannot be recalled (the
// worker owns the order at that point, per the single-writer rule), so
// Cancel after dispatch is a no-op -- the order still resolves to its
// natural terminal state (see spec.md §9 cancel-mid-swap decision, recorded
// in DESIGN.md).
func (s *Scheduler) Cancel(orderID string) bool {
	canceled := false
	s.locks.withLock(orderID, func() {
		entry, ok := s.orders[orderID]
		if !ok || entry.finalized || !s.store.Exists(orderID) {
			return
		}
		s.store.Close(orderID)
		entry.finalized = true
		entry.order.Fail(string(enginerr.CodeInternal), "canceled by client")
		ctx := context.Background()
		_ = s.repo.UpdateOrderStatus(ctx, orderID, orderdomain.StatusFailed, map[string]interface{}{
			"errorCode": string(enginerr.CodeInternal), "errorMessage": "canceled by client",
		})
		s.bus.Publish(orderdomain.Event{
			OrderID: orderID, Type: orderdomain.EventFailed, Timestamp: time.Now(),
			Error: "canceled", Message: "canceled by client",
		})
		s.metrics.RecordOrderTerminal(ctx, string(orderdomain.StatusFailed), "canceled")
		s.stats.RecordOrderCompletion(0, false)
		s.locks.release(orderID)
		delete(s.orders, orderID)
		canceled = true
	})
	return canceled
}

// transition moves order to `to`, persists the status, and logs illegal
// transition attempts rather than panicking -- a defensive guard against a
// future bug in the pipeline's own call ordering.
func (s *Scheduler) transition(ctx context.Context, order *orderdomain.Order, to orderdomain.Status) {
	if !order.Transition(to) {
		s.logger.Warn(ctx, "rejected illegal order transition", map[string]interface{}{
			"orderId": order.ID, "from": string(order.Status), "to": string(to),
		})
		return
	}
	if err := s.repo.UpdateOrderStatus(ctx, order.ID, to, nil); err != nil {
		s.logger.Error(ctx, "failed to persist order status", err, map[string]interface{}{
			"orderId": order.ID, "status": string(to),
		})
	}
}
