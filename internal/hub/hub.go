// Package hub implements the routing hub (C3): quote validation, strategy
// scoring with mandatory tie-breaks, and market analysis, per spec.md
// section 4.2.
package hub

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/enginerr"
	"github.com/dexrouter/engine/internal/orderdomain"
)

// defaultSlippageWarn and defaultLiquidityWarn are the default warning
// thresholds from spec.md section 4.2; New uses them for any
// config.ValidationThresholds field left at zero and stores the result in
// Hub.slippageWarn and Hub.liquidityWarn.
const (
	defaultSlippageWarn  = 0.10
	defaultLiquidityWarn = 100_000
)

// ValidationResult is the outcome of validate(quotes).
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Preferences is the optional filter described in spec.md section 4.2.
type Preferences struct {
	ExcludeVenues   map[string]bool
	MinLiquidity    decimal.Decimal
	MaxSlippage     *float64
	PreferredVenue  string
}

// MarketMetrics summarizes a quote set, per spec.md section 4.2.
type MarketMetrics struct {
	PriceSpread   decimal.Decimal
	PriceSpreadPct float64
	MeanPrice     decimal.Decimal
	BestOutput    decimal.Decimal
	WorstOutput   decimal.Decimal
	MeanSlippage  float64
	TotalLiquidity decimal.Decimal
}

// StrategyAnalysis reports the winning tuple per strategy.
type StrategyAnalysis map[orderdomain.RoutingStrategy]orderdomain.Tuple

// Analysis is the result of analyze(quotes).
type Analysis struct {
	TotalQuotes      int
	MarketMetrics    MarketMetrics
	StrategyAnalysis StrategyAnalysis
	Recommendation   orderdomain.Tuple
	Timestamp        time.Time
}

// Hub is the routing hub. It is stateless across calls except for the
// configured speed-rank table and warn thresholds, so a single instance is
// shared by the scheduler across all orders.
type Hub struct {
	speedRank     map[string]int
	slippageWarn  float64
	liquidityWarn float64
}

// New builds a Hub from engine configuration.
func New(cfg config.EngineConfig) *Hub {
	slippageWarn := cfg.ValidationThresholds.SlippageWarn
	if slippageWarn == 0 {
		slippageWarn = defaultSlippageWarn
	}
	liquidityWarn := cfg.ValidationThresholds.LiquidityWarn
	if liquidityWarn == 0 {
		liquidityWarn = defaultLiquidityWarn
	}
	return &Hub{
		speedRank:     cfg.VenueSpeedRank,
		slippageWarn:  slippageWarn,
		liquidityWarn: liquidityWarn,
	}
}

// Validate checks each quote for hard errors (missing venue, nonpositive
// output) and soft warnings (high slippage, low liquidity). It is pure and
// idempotent: repeated calls on the same input return identical results.
func (h *Hub) Validate(quotes []orderdomain.Tuple) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, q := range quotes {
		if q.Venue == "" {
			result.Valid = false
			result.Errors = append(result.Errors, "quote missing venue identifier")
		}
		if !q.Output.IsPositive() {
			result.Valid = false
			result.Errors = append(result.Errors, "quote output must be positive: venue="+q.Venue)
		}
		if q.Slippage > h.slippageWarn {
			result.Warnings = append(result.Warnings, "high slippage for venue="+q.Venue)
		}
		liquidityWarn := decimal.NewFromFloat(h.liquidityWarn)
		if q.Liquidity.LessThan(liquidityWarn) {
			result.Warnings = append(result.Warnings, "low liquidity for venue="+q.Venue)
		}
	}

	return result
}

// Select scores quotes under strategy and returns the winning tuple.
// Unrecognized strategies degrade to BEST_PRICE (caller should have
// already normalized and warned; Select normalizes defensively too).
func (h *Hub) Select(quotes []orderdomain.Tuple, strategy orderdomain.RoutingStrategy, prefs *Preferences) (orderdomain.Tuple, error) {
	filtered := applyPreferences(quotes, prefs)
	if len(filtered) == 0 {
		return orderdomain.Tuple{}, enginerr.New(enginerr.CodeNoQuotes, "empty_quote_set")
	}

	normalized, _ := strategy.Normalize()

	sorted := append([]orderdomain.Tuple(nil), filtered...)
	switch normalized {
	case orderdomain.StrategyBestPrice:
		sort.SliceStable(sorted, func(i, j int) bool {
			return bestPriceLess(sorted[j], sorted[i], h.speedRank)
		})
	case orderdomain.StrategyLowestSlippage:
		sort.SliceStable(sorted, func(i, j int) bool {
			return lowestSlippageLess(sorted[j], sorted[i])
		})
	case orderdomain.StrategyHighestLiquidity:
		sort.SliceStable(sorted, func(i, j int) bool {
			return highestLiquidityLess(sorted[j], sorted[i])
		})
	case orderdomain.StrategyFastestExecution:
		sort.SliceStable(sorted, func(i, j int) bool {
			return fastestExecutionLess(sorted[j], sorted[i], h.speedRank)
		})
	}

	return sorted[0], nil
}

// applyPreferences filters out excluded venues, quotes below the minimum
// liquidity, and quotes above the maximum slippage, then promotes the
// preferred venue (if present) to the front without forcing its selection.
func applyPreferences(quotes []orderdomain.Tuple, prefs *Preferences) []orderdomain.Tuple {
	if prefs == nil {
		return quotes
	}

	filtered := make([]orderdomain.Tuple, 0, len(quotes))
	for _, q := range quotes {
		if prefs.ExcludeVenues != nil && prefs.ExcludeVenues[q.Venue] {
			continue
		}
		if !prefs.MinLiquidity.IsZero() && q.Liquidity.LessThan(prefs.MinLiquidity) {
			continue
		}
		if prefs.MaxSlippage != nil && q.Slippage > *prefs.MaxSlippage {
			continue
		}
		filtered = append(filtered, q)
	}

	if prefs.PreferredVenue != "" {
		for i, q := range filtered {
			if q.Venue == prefs.PreferredVenue && i != 0 {
				filtered[0], filtered[i] = filtered[i], filtered[0]
				break
			}
		}
	}

	return filtered
}

// bestPriceLess implements BEST_PRICE: argmax(output), tie-break lower
// slippage, then lower latency hint is unavailable on Tuple so falls
// through to lexicographic venue (the hub only sees the normalized tuple,
// which carries no latency field -- latency is a venue-worker-only hint
// used upstream when tuples are derived).
func bestPriceLess(a, b orderdomain.Tuple, _ map[string]int) bool {
	if !a.Output.Equal(b.Output) {
		return a.Output.LessThan(b.Output)
	}
	if a.Slippage != b.Slippage {
		return a.Slippage > b.Slippage
	}
	return a.Venue > b.Venue
}

// lowestSlippageLess implements LOWEST_SLIPPAGE: argmin(slippage),
// tie-break higher output.
func lowestSlippageLess(a, b orderdomain.Tuple) bool {
	if a.Slippage != b.Slippage {
		return a.Slippage > b.Slippage
	}
	return a.Output.LessThan(b.Output)
}

// highestLiquidityLess implements HIGHEST_LIQUIDITY: argmax(liquidity),
// tie-break higher output.
func highestLiquidityLess(a, b orderdomain.Tuple) bool {
	if !a.Liquidity.Equal(b.Liquidity) {
		return a.Liquidity.LessThan(b.Liquidity)
	}
	return a.Output.LessThan(b.Output)
}

// fastestExecutionLess implements FASTEST_EXECUTION: argmax(speed_rank),
// tie-break lower slippage. Unlisted venues rank 0.
func fastestExecutionLess(a, b orderdomain.Tuple, speedRank map[string]int) bool {
	ra, rb := speedRank[a.Venue], speedRank[b.Venue]
	if ra != rb {
		return ra < rb
	}
	return a.Slippage > b.Slippage
}

// Analyze computes market metrics and the per-strategy winners, per
// spec.md section 4.2.
func (h *Hub) Analyze(quotes []orderdomain.Tuple) (Analysis, error) {
	if len(quotes) == 0 {
		return Analysis{}, enginerr.New(enginerr.CodeNoQuotes, "empty_quote_set")
	}

	metrics := h.marketMetrics(quotes)

	strategies := []orderdomain.RoutingStrategy{
		orderdomain.StrategyBestPrice,
		orderdomain.StrategyLowestSlippage,
		orderdomain.StrategyHighestLiquidity,
		orderdomain.StrategyFastestExecution,
	}

	analysis := make(StrategyAnalysis, len(strategies))
	for _, s := range strategies {
		winner, err := h.Select(quotes, s, nil)
		if err != nil {
			return Analysis{}, err
		}
		analysis[s] = winner
	}

	recommendation := analysis[orderdomain.StrategyBestPrice]

	return Analysis{
		TotalQuotes:      len(quotes),
		MarketMetrics:    metrics,
		StrategyAnalysis: analysis,
		Recommendation:   recommendation,
		Timestamp:        time.Now(),
	}, nil
}

func (h *Hub) marketMetrics(quotes []orderdomain.Tuple) MarketMetrics {
	minPrice, maxPrice := quotes[0].Price, quotes[0].Price
	bestOutput, worstOutput := quotes[0].Output, quotes[0].Output
	sumPrice := decimal.Zero
	sumSlippage := 0.0
	totalLiquidity := decimal.Zero

	for _, q := range quotes {
		if q.Price.LessThan(minPrice) {
			minPrice = q.Price
		}
		if q.Price.GreaterThan(maxPrice) {
			maxPrice = q.Price
		}
		if q.Output.GreaterThan(bestOutput) {
			bestOutput = q.Output
		}
		if q.Output.LessThan(worstOutput) {
			worstOutput = q.Output
		}
		sumPrice = sumPrice.Add(q.Price)
		sumSlippage += q.Slippage
		totalLiquidity = totalLiquidity.Add(q.Liquidity)
	}

	n := decimal.NewFromInt(int64(len(quotes)))
	meanPrice := sumPrice.Div(n)
	spread := maxPrice.Sub(minPrice)

	spreadPct := 0.0
	if !minPrice.IsZero() {
		spreadPctDec := spread.Div(minPrice)
		spreadPct, _ = spreadPctDec.Float64()
	}

	return MarketMetrics{
		PriceSpread:    spread,
		PriceSpreadPct: spreadPct,
		MeanPrice:      meanPrice,
		BestOutput:     bestOutput,
		WorstOutput:    worstOutput,
		MeanSlippage:   sumSlippage / float64(len(quotes)),
		TotalLiquidity: totalLiquidity,
	}
}
