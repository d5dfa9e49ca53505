package venue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/enginerr"
	"github.com/dexrouter/engine/internal/orderdomain"
	"github.com/dexrouter/engine/internal/repository"
	"github.com/dexrouter/engine/pkg/observability"
)

// circuitThreshold is the number of consecutive quote-job failures after
// which a venue is marked unhealthy (supplemented feature, SPEC_FULL.md
// section 4: "Per-venue circuit breaking").
const circuitThreshold = 5

// circuitCooldown is how long an unhealthy venue is skipped before being
// given another chance.
const circuitCooldown = 30 * time.Second

// Worker owns exactly one venue's job stream: a bounded queue consumed by
// a pool of goroutines sized to the configured concurrency, each gated by
// a shared rate limiter.
type Worker struct {
	Venue string

	queue      chan Job
	sim        Simulator
	sink       Sink
	repo       repository.OrderRepository
	cache      repository.ActiveOrderCache
	logger     *observability.Logger
	limiter    *rate.Limiter
	quoteRetry config.RetryPolicy
	swapRetry  config.RetryPolicy

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu                sync.Mutex
	consecutiveFails  int
	unhealthyUntil    time.Time
}

// NewWorker builds a venue worker. queueDepth bounds how many jobs may wait
// before Enqueue blocks.
func NewWorker(venueName string, cfg config.EngineConfig, sim Simulator, sink Sink,
	repo repository.OrderRepository, cache repository.ActiveOrderCache, logger *observability.Logger, queueDepth int) *Worker {
	return &Worker{
		Venue:      venueName,
		queue:      make(chan Job, queueDepth),
		sim:        sim,
		sink:       sink,
		repo:       repo,
		cache:      cache,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(cfg.WorkerRateLimit.Duration/time.Duration(cfg.WorkerRateLimit.Max)), cfg.WorkerRateLimit.Max),
		quoteRetry: cfg.QuoteRetry,
		swapRetry:  cfg.SwapRetry,
		stopChan:   make(chan struct{}),
	}
}

// Start launches `concurrency` goroutines consuming the venue's queue.
func (w *Worker) Start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

// Stop signals the worker to drain in-flight jobs and refuse new work,
// then waits for all goroutines to exit (graceful shutdown, spec.md §5).
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// Enqueue submits a job to this venue's queue. It blocks if the queue is
// full, providing natural backpressure.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.queue <- job:
	case <-w.stopChan:
	}
}

// Healthy reports whether the venue is outside its circuit-breaker
// cooldown window.
func (w *Worker) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().After(w.unhealthyUntil)
}

func (w *Worker) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutiveFails++
	if w.consecutiveFails >= circuitThreshold {
		w.unhealthyUntil = time.Now().Add(circuitCooldown)
	}
}

func (w *Worker) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutiveFails = 0
}

func (w *Worker) loop() {
	defer w.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-w.stopChan:
			return
		case job := <-w.queue:
			if err := w.limiter.Wait(ctx); err != nil {
				continue
			}
			switch job.Type {
			case JobQuote:
				w.runQuoteJob(ctx, job)
			case JobSwap:
				w.runSwapJob(ctx, job)
			}
		}
	}
}

// runQuoteJob implements the quote-job algorithm of spec.md section 4.1.
func (w *Worker) runQuoteJob(ctx context.Context, job Job) {
	w.sink.Emit(orderdomain.Event{
		OrderID: job.OrderID, Type: orderdomain.EventPending,
		Dex: w.Venue, Timestamp: time.Now(),
	})

	var lastErr error
	for attempt := 1; attempt <= w.quoteRetry.MaxAttempts; attempt++ {
		quote, err := w.sim.GetQuote(ctx, w.Venue, job.TokenIn, job.TokenOut, job.Amount)
		if err == nil {
			w.recordSuccess()
			received, expected := w.sink.QuoteSucceeded(job.OrderID, w.Venue, quote)
			w.sink.Emit(orderdomain.Event{
				OrderID: job.OrderID, Type: orderdomain.EventQuoteReceived, Dex: w.Venue,
				Timestamp: time.Now(),
				Quote: &orderdomain.QuotePayload{
					Price: quote.Price, EstimatedOutput: quote.Output,
					Slippage: quote.Slippage, Liquidity: quote.Liquidity,
				},
				QuotesReceived: received, TotalExpected: expected,
			})
			return
		}

		lastErr = err
		if !enginerr.IsRetryable(err) || attempt == w.quoteRetry.MaxAttempts {
			break
		}
		w.sleepBackoff(w.quoteRetry.BackoffBase, attempt)
	}

	w.recordFailure()
	final := enginerr.Wrap(enginerr.CodeVenuePermanent, "quote job exhausted retries", lastErr)
	received, expected := w.sink.QuoteFailed(job.OrderID, w.Venue, final)
	w.sink.Emit(orderdomain.Event{
		OrderID: job.OrderID, Type: orderdomain.EventQuoteFailed, Dex: w.Venue,
		Error: final.Error(), Timestamp: time.Now(),
		QuotesReceived: received, TotalExpected: expected,
	})
}

// runSwapJob implements the swap-job algorithm of spec.md section 4.1.
func (w *Worker) runSwapJob(ctx context.Context, job Job) {
	var lastErr error
	for attempt := 1; attempt <= w.swapRetry.MaxAttempts; attempt++ {
		w.sink.Emit(orderdomain.Event{
			OrderID: job.OrderID, Type: orderdomain.EventBuilding, Dex: w.Venue,
			Stage: "building", Timestamp: time.Now(),
		})

		result, err := w.sim.ExecuteSwap(ctx, w.Venue, job.TokenIn, job.TokenOut, job.Amount)
		if err == nil {
			w.sink.Emit(orderdomain.Event{
				OrderID: job.OrderID, Type: orderdomain.EventSubmitted, Dex: w.Venue,
				Stage: "submitted", TxHash: result.TxHash, Timestamp: time.Now(),
			})

			if persistErr := w.persistOutcome(ctx, job.OrderID, result); persistErr != nil {
				w.logger.Error(ctx, "failed to persist swap outcome", persistErr, map[string]interface{}{
					"orderId": job.OrderID, "venue": w.Venue,
				})
			}

			w.sink.Emit(orderdomain.Event{
				OrderID: job.OrderID, Type: orderdomain.EventConfirmed, Dex: w.Venue,
				TxHash: result.TxHash, AmountOut: result.AmountOut, ExecutedPrice: result.ExecutedPrice,
				Timestamp: time.Now(),
			})
			w.sink.SwapSucceeded(job.OrderID, result)
			return
		}

		lastErr = err
		if !enginerr.IsRetryable(err) || attempt == w.swapRetry.MaxAttempts {
			break
		}
		w.sleepBackoff(w.swapRetry.BackoffBase, attempt)
	}

	final := enginerr.Wrap(enginerr.CodeSwapRejected, "swap job exhausted retries", lastErr)
	w.sink.Emit(orderdomain.Event{
		OrderID: job.OrderID, Type: orderdomain.EventFailed, Dex: w.Venue,
		Message: "swap rejected", Error: string(enginerr.CodeSwapRejected), Timestamp: time.Now(),
	})
	w.sink.SwapFailed(job.OrderID, final)
}

func (w *Worker) persistOutcome(ctx context.Context, orderID string, result orderdomain.SwapResult) error {
	patch := map[string]interface{}{
		"selectedVenue": result.Venue,
		"txHash":        result.TxHash,
	}
	if err := w.repo.UpdateOrderStatus(ctx, orderID, orderdomain.StatusConfirmed, patch); err != nil {
		return err
	}
	if order, err := w.repo.GetOrderByID(ctx, orderID); err == nil {
		_ = w.cache.UpdateActiveOrder(ctx, order)
	}
	return nil
}

// sleepBackoff waits base*2^(attempt-1), an exponential backoff as
// required by spec.md section 4.1's retry policy.
func (w *Worker) sleepBackoff(base time.Duration, attempt int) {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	select {
	case <-time.After(delay):
	case <-w.stopChan:
	}
}
