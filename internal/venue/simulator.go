package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/enginerr"
	"github.com/dexrouter/engine/internal/orderdomain"
)

// DemoSimulatorConfig tunes the in-memory AMM venue simulator used by the
// demo gateway and tests, grounded on the teacher's mock exchange pattern
// (per-pair base price, volatility, configurable failure rate).
type DemoSimulatorConfig struct {
	BasePrices    map[string]decimal.Decimal // "TOKENIN/TOKENOUT" -> base price
	VenueSpread   map[string]float64         // venue -> price spread fraction around base
	QuoteFailRate float64                    // fraction of GetQuote calls that fail transiently
	SwapFailRate  float64                    // fraction of ExecuteSwap calls that fail
	QuoteLatency  time.Duration
	SwapLatency   time.Duration
}

// DemoSimulator is a deterministic-enough, randomized venue simulator: it
// never calls a real chain, generating plausible AMM-style quotes and swap
// confirmations instead. It implements the Simulator interface.
type DemoSimulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg DemoSimulatorConfig
}

// NewDemoSimulator builds a simulator seeded from the wall clock at
// construction time. Subsequent calls are not required to be reproducible.
func NewDemoSimulator(cfg DemoSimulatorConfig) *DemoSimulator {
	if cfg.BasePrices == nil {
		cfg.BasePrices = map[string]decimal.Decimal{}
	}
	if cfg.VenueSpread == nil {
		cfg.VenueSpread = map[string]float64{}
	}
	return &DemoSimulator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg: cfg,
	}
}

func pairKey(tokenIn, tokenOut string) string {
	return tokenIn + "/" + tokenOut
}

func (d *DemoSimulator) basePrice(tokenIn, tokenOut string) decimal.Decimal {
	if p, ok := d.cfg.BasePrices[pairKey(tokenIn, tokenOut)]; ok {
		return p
	}
	return decimal.NewFromInt(1)
}

// GetQuote produces a randomized AMM-style quote for venue, occasionally
// failing to exercise the worker's retry policy.
func (d *DemoSimulator) GetQuote(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.Quote, error) {
	d.mu.Lock()
	r := d.rng
	fail := r.Float64() < d.cfg.QuoteFailRate
	spread := d.cfg.VenueSpread[venue]
	jitter := (r.Float64()*2 - 1) * 0.01 // +/-1% venue-to-venue jitter
	slippage := r.Float64() * 0.02       // 0-2% simulated slippage
	latency := d.cfg.QuoteLatency
	d.mu.Unlock()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return orderdomain.Quote{}, enginerr.Wrap(enginerr.CodeVenueTransient, "quote request canceled", ctx.Err())
	}

	if fail {
		return orderdomain.Quote{}, enginerr.New(enginerr.CodeVenueTransient, fmt.Sprintf("%s: simulated quote timeout", venue))
	}

	price := d.basePrice(tokenIn, tokenOut).Mul(decimal.NewFromFloat(1 + spread + jitter))
	output := amount.Mul(price).Mul(decimal.NewFromFloat(1 - slippage))
	liquidity := decimal.NewFromFloat(50_000 + r.Float64()*450_000)
	fee := amount.Mul(decimal.NewFromFloat(0.003))

	return orderdomain.Quote{
		Venue:      venue,
		Price:      price,
		Output:     output,
		Slippage:   slippage,
		Liquidity:  liquidity,
		Fee:        fee,
		LatencyMs:  latency.Milliseconds(),
		ReceivedAt: time.Now(),
	}, nil
}

// ExecuteSwap simulates broadcasting and confirming a swap, occasionally
// failing to exercise the worker's swap retry policy.
func (d *DemoSimulator) ExecuteSwap(ctx context.Context, venue, tokenIn, tokenOut string, amount decimal.Decimal) (orderdomain.SwapResult, error) {
	d.mu.Lock()
	r := d.rng
	fail := r.Float64() < d.cfg.SwapFailRate
	spread := d.cfg.VenueSpread[venue]
	latency := d.cfg.SwapLatency
	d.mu.Unlock()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return orderdomain.SwapResult{}, enginerr.Wrap(enginerr.CodeVenueTransient, "swap request canceled", ctx.Err())
	}

	if fail {
		return orderdomain.SwapResult{}, enginerr.New(enginerr.CodeVenueTransient, fmt.Sprintf("%s: simulated execution revert", venue))
	}

	price := d.basePrice(tokenIn, tokenOut).Mul(decimal.NewFromFloat(1 + spread))
	amountOut := amount.Mul(price)

	return orderdomain.SwapResult{
		Venue:         venue,
		TxHash:        "0x" + uuid.NewString(),
		AmountOut:     amountOut,
		ExecutedPrice: price,
	}, nil
}
