package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// sinkProxy breaks the Pool<->Scheduler constructor cycle the same way
// cmd/engine wires it: Pool needs a Sink before the Scheduler exists.
type sinkProxy struct{ target venue.Sink }

func (p *sinkProxy) Emit(e orderdomain.Event) { p.target.Emit(e) }
func (p *sinkProxy) QuoteSucceeded(orderID, v string, q orderdomain.Quote) (int, int) {
	return p.target.QuoteSucceeded(orderID, v, q)
}
func (p *sinkProxy) QuoteFailed(orderID, v string, err error) (int, int) {
	return p.target.QuoteFailed(orderID, v, err)
}
func (p *sinkProxy) SwapSucceeded(orderID string, result orderdomain.SwapResult) {
	p.target.SwapSucceeded(orderID, result)
}
func (p *sinkProxy) SwapFailed(orderID string, err error) { p.target.SwapFailed(orderID, err) }

type scriptedSimulator struct {
	mu         sync.Mutex
	quoteFunc  func(venue string) (orderdomain.Quote, error)
	swapFunc   func(venue string) (orderdomain.SwapResult, error)
}

func (s *scriptedSimulator) GetQuote(ctx context.Context, v, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.Quote, error) {
	s.mu.Lock()
	fn := s.quoteFunc
	s.mu.Unlock()
	return fn(v)
}

func (s *scriptedSimulator) ExecuteSwap(ctx context.Context, v, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.SwapResult, error) {
	s.mu.Lock()
	fn := s.swapFunc
	s.mu.Unlock()
	return fn(v)
}

type fakeRepo struct {
	mu     sync.Mutex
	orders map[string]*orderdomain.Order
}

func newFakeRepo() *fakeRepo { return &fakeRepo{orders: map[string]*orderdomain.Order{}} }

func (r *fakeRepo) CreateOrder(ctx context.Context, order *orderdomain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}
func (r *fakeRepo) GetOrderByID(ctx context.Context, id string) (*orderdomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}
func (r *fakeRepo) UpdateOrder(ctx context.Context, order *orderdomain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}
func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, id string, status orderdomain.Status, patch map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	if v, ok := patch["selectedVenue"].(string); ok {
		o.SelectedVenue = v
	}
	if v, ok := patch["txHash"].(string); ok {
		o.TxHash = v
	}
	if v, ok := patch["errorCode"].(string); ok {
		o.ErrorCode = v
	}
	if v, ok := patch["errorMessage"].(string); ok {
		o.ErrorMessage = v
	}
	return nil
}
func (r *fakeRepo) GetOrders(ctx context.Context, limit, offset int) ([]*orderdomain.Order, error) {
	return nil, nil
}

type fakeCache struct{ repo *fakeRepo }

func (c fakeCache) SetActiveOrder(ctx context.Context, order *orderdomain.Order) error    { return nil }
func (c fakeCache) GetActiveOrder(ctx context.Context, id string) (*orderdomain.Order, error) {
	return nil, repository.ErrOrderNotFound
}
func (c fakeCache) UpdateActiveOrder(ctx context.Context, order *orderdomain.Order) error { return nil }
func (c fakeCache) IsHealthy(ctx context.Context) bool                                    { return true }
func (c fakeCache) Close() error                                                          { return nil }

type harness struct {
	sched *Scheduler
	repo  *fakeRepo
	bus   *broadcaster.Broadcaster
	sim   *scriptedSimulator
}

func newHarness(t *testing.T, cfg config.EngineConfig) *harness {
	t.Helper()
	if cfg.Venues == nil {
		cfg.Venues = []string{"uniswap", "sushiswap", "curve", "balancer"}
	}
	if cfg.QuoteDeadline == 0 {
		cfg.QuoteDeadline = 200 * time.Millisecond
	}
	if cfg.WorkerConcurrency == 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.WorkerRateLimit.Max == 0 {
		cfg.WorkerRateLimit = config.RateLimit{Max: 1000, Duration: time.Second}
	}
	if cfg.QuoteRetry.MaxAttempts == 0 {
		cfg.QuoteRetry = config.RetryPolicy{MaxAttempts: 2, BackoffBase: 2 * time.Millisecond}
	}
	if cfg.SwapRetry.MaxAttempts == 0 {
		cfg.SwapRetry = config.RetryPolicy{MaxAttempts: 2, BackoffBase: 2 * time.Millisecond}
	}

	sim := &scriptedSimulator{
		quoteFunc: func(v string) (orderdomain.Quote, error) {
			return orderdomain.Quote{Venue: v, Price: decimal.NewFromInt(100), Output: decimal.NewFromInt(99), Liquidity: decimal.NewFromInt(200_000)}, nil
		},
		swapFunc: func(v string) (orderdomain.SwapResult, error) {
			return orderdomain.SwapResult{Venue: v, TxHash: "0xdeadbeef", AmountOut: decimal.NewFromInt(99), ExecutedPrice: decimal.NewFromInt(100)}, nil
		},
	}

	repo := newFakeRepo()
	cache := fakeCache{repo: repo}
	store := quotestore.New()
	h := hub.New(cfg)
	bus := broadcaster.New()
	reg := stats.New()
	logger := observability.NewLogger(config.ObservabilityConfig{LogLevel: "error"})
	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{Enabled: false})
	require.NoError(t, err)

	proxy := &sinkProxy{}
	pool := venue.NewPool(cfg, sim, proxy, repo, cache, logger)
	sched := New(cfg, store, h, pool, bus, reg, repo, cache, logger, metrics)
	proxy.target = sched
	pool.Start()
	t.Cleanup(pool.Stop)

	return &harness{sched: sched, repo: repo, bus: bus, sim: sim}
}

func awaitTerminal(t *testing.T, sub *broadcaster.Subscription) orderdomain.Event {
	t.Helper()
	var last orderdomain.Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return last
			}
			last = e
			if e.Type == orderdomain.EventConfirmed || e.Type == orderdomain.EventFailed {
				return last
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

// S1: all venues quote successfully, best price wins, swap confirms.
func TestScheduler_S1_HappyPathConfirms(t *testing.T) {
	h := newHarness(t, config.EngineConfig{})
	sub := h.bus.Subscribe(mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	}))

	final := awaitTerminal(t, sub)
	assert.Equal(t, orderdomain.EventConfirmed, final.Type)
	assert.Equal(t, "0xdeadbeef", final.TxHash)
}

// S2: every venue's quote job fails -- order fails with no_quotes.
func TestScheduler_S2_AllVenuesFail_NoQuotes(t *testing.T) {
	h := newHarness(t, config.EngineConfig{})
	h.sim.mu.Lock()
	h.sim.quoteFunc = func(v string) (orderdomain.Quote, error) {
		return orderdomain.Quote{}, enginerr.New(enginerr.CodeVenuePermanent, "no liquidity")
	}
	h.sim.mu.Unlock()

	sub := h.bus.Subscribe(mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	}))

	final := awaitTerminal(t, sub)
	assert.Equal(t, orderdomain.EventFailed, final.Type)
	assert.Equal(t, string(enginerr.CodeNoQuotes), final.Error)
}

// S3: deadline fires with at least two valid quotes in hand -- completes early.
func TestScheduler_S3_DeadlineWithEnoughQuotes_CompletesEarly(t *testing.T) {
	cfg := config.EngineConfig{QuoteDeadline: 60 * time.Millisecond}
	h := newHarness(t, cfg)

	h.sim.mu.Lock()
	h.sim.quoteFunc = func(v string) (orderdomain.Quote, error) {
		if v == "balancer" {
			<-time.After(500 * time.Millisecond) // outlives the deadline; deadline must still fire
			return orderdomain.Quote{}, nil
		}
		return orderdomain.Quote{Venue: v, Price: decimal.NewFromInt(100), Output: decimal.NewFromInt(99), Liquidity: decimal.NewFromInt(200_000)}, nil
	}
	h.sim.mu.Unlock()

	sub := h.bus.Subscribe(mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	}))

	final := awaitTerminal(t, sub)
	assert.Equal(t, orderdomain.EventConfirmed, final.Type, "deadline with >=2 valid quotes should still route and confirm")
}

// S4: deadline fires with fewer than two valid quotes -- fails with deadline_exceeded.
func TestScheduler_S4_DeadlineWithInsufficientQuotes_Fails(t *testing.T) {
	cfg := config.EngineConfig{QuoteDeadline: 40 * time.Millisecond, Venues: []string{"uniswap"}}
	h := newHarness(t, cfg)

	h.sim.mu.Lock()
	h.sim.quoteFunc = func(v string) (orderdomain.Quote, error) {
		<-time.After(300 * time.Millisecond)
		return orderdomain.Quote{}, nil
	}
	h.sim.mu.Unlock()

	sub := h.bus.Subscribe(mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	}))

	final := awaitTerminal(t, sub)
	assert.Equal(t, orderdomain.EventFailed, final.Type)
	assert.Equal(t, string(enginerr.CodeDeadlineExceeded), final.Error)
}

// S5: swap execution exhausts retries -- order fails with swap_rejected.
func TestScheduler_S5_SwapExhaustsRetries_Fails(t *testing.T) {
	h := newHarness(t, config.EngineConfig{})
	h.sim.mu.Lock()
	h.sim.swapFunc = func(v string) (orderdomain.SwapResult, error) {
		return orderdomain.SwapResult{}, enginerr.New(enginerr.CodeVenueTransient, "reverted")
	}
	h.sim.mu.Unlock()

	sub := h.bus.Subscribe(mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	}))

	final := awaitTerminal(t, sub)
	assert.Equal(t, orderdomain.EventFailed, final.Type)
	assert.Equal(t, string(enginerr.CodeSwapRejected), final.Error)
}

// S6: Cancel before terminal is observed prevents any further progress once
// the race resolves -- the order ends up in exactly one terminal state.
func TestScheduler_S6_CancelIsIdempotentAgainstConcurrentCompletion(t *testing.T) {
	h := newHarness(t, config.EngineConfig{})
	orderID := mustSubmit(t, h, orderdomain.OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
	})
	sub := h.bus.Subscribe(orderID)

	h.sched.Cancel(orderID)
	h.sched.Cancel(orderID)

	final := awaitTerminal(t, sub)
	assert.Contains(t, []orderdomain.EventType{orderdomain.EventConfirmed, orderdomain.EventFailed}, final.Type)
}

func mustSubmit(t *testing.T, h *harness, req orderdomain.OrderRequest) string {
	t.Helper()
	order, err := h.sched.Submit(context.Background(), req)
	require.NoError(t, err)
	return order.ID
}
