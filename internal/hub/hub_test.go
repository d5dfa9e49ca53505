package hub

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/orderdomain"
)

func newTestHub() *Hub {
	return New(config.EngineConfig{
		VenueSpeedRank: map[string]int{"uniswap": 1, "sushiswap": 2, "curve": 2, "balancer": 3},
	})
}

func tuple(venue string, price, output, liquidity int64, slippage float64) orderdomain.Tuple {
	return orderdomain.Tuple{
		Venue: venue, Price: decimal.NewFromInt(price), Output: decimal.NewFromInt(output),
		Liquidity: decimal.NewFromInt(liquidity), Slippage: slippage,
	}
}

func TestHub_Validate_RejectsNonPositiveOutput(t *testing.T) {
	h := newTestHub()
	result := h.Validate([]orderdomain.Tuple{
		tuple("uniswap", 3000, 0, 100_000, 0.01),
	})
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestHub_Validate_WarnsOnHighSlippageAndLowLiquidity(t *testing.T) {
	h := New(config.EngineConfig{})
	result := h.Validate([]orderdomain.Tuple{
		tuple("uniswap", 3000, 2990, 1000, 0.5),
	})
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 2)
}

func TestHub_Select_BestPrice_TieBreaksOnSlippageThenVenue(t *testing.T) {
	h := newTestHub()

	quotes := []orderdomain.Tuple{
		tuple("sushiswap", 3000, 2980, 100_000, 0.02),
		tuple("uniswap", 3000, 2980, 100_000, 0.01),
	}
	winner, err := h.Select(quotes, orderdomain.StrategyBestPrice, nil)
	require.NoError(t, err)
	assert.Equal(t, "uniswap", winner.Venue, "equal output ties broken by lower slippage")
}

func TestHub_Select_LowestSlippage(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("orca", 100, 99, 200_000, 0.002),
		tuple("jupiter", 100, 100, 200_000, 0.01),
	}
	winner, err := h.Select(quotes, orderdomain.StrategyLowestSlippage, nil)
	require.NoError(t, err)
	assert.Equal(t, "orca", winner.Venue)
}

func TestHub_Select_HighestLiquidity(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("curve", 100, 99, 50_000, 0.01),
		tuple("balancer", 100, 99, 500_000, 0.01),
	}
	winner, err := h.Select(quotes, orderdomain.StrategyHighestLiquidity, nil)
	require.NoError(t, err)
	assert.Equal(t, "balancer", winner.Venue)
}

func TestHub_Select_FastestExecution_UsesSpeedRank(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("balancer", 100, 99, 100_000, 0.01),
		tuple("uniswap", 100, 99, 100_000, 0.02),
	}
	winner, err := h.Select(quotes, orderdomain.StrategyFastestExecution, nil)
	require.NoError(t, err)
	assert.Equal(t, "balancer", winner.Venue, "higher speed rank number wins (argmax)")
}

func TestHub_Select_UnknownStrategyDegradesToBestPrice(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("uniswap", 100, 99, 100_000, 0.01),
		tuple("sushiswap", 100, 101, 100_000, 0.01),
	}
	winner, err := h.Select(quotes, orderdomain.RoutingStrategy("MADE_UP"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sushiswap", winner.Venue)
}

func TestHub_Select_EmptyQuoteSetReturnsNoQuotesError(t *testing.T) {
	h := newTestHub()
	_, err := h.Select(nil, orderdomain.StrategyBestPrice, nil)
	require.Error(t, err)
}

func TestHub_Select_PreferencesFilterExcludedVenues(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("uniswap", 100, 200, 100_000, 0.01),
		tuple("sushiswap", 100, 150, 100_000, 0.01),
	}
	winner, err := h.Select(quotes, orderdomain.StrategyBestPrice, &Preferences{
		ExcludeVenues: map[string]bool{"uniswap": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "sushiswap", winner.Venue)
}

func TestHub_Analyze_ReturnsPerStrategyWinners(t *testing.T) {
	h := newTestHub()
	quotes := []orderdomain.Tuple{
		tuple("uniswap", 100, 200, 300_000, 0.005),
		tuple("sushiswap", 102, 195, 150_000, 0.02),
	}
	analysis, err := h.Analyze(quotes)
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.TotalQuotes)
	assert.Len(t, analysis.StrategyAnalysis, 4)
	assert.Equal(t, analysis.StrategyAnalysis[orderdomain.StrategyBestPrice], analysis.Recommendation)
}
