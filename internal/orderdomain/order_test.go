package orderdomain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to routing", StatusPending, StatusRouting, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to confirmed skips states", StatusPending, StatusConfirmed, false},
		{"routing to processing", StatusRouting, StatusProcessing, true},
		{"processing to building", StatusProcessing, StatusBuilding, true},
		{"building self loop for swap retry", StatusBuilding, StatusBuilding, true},
		{"building to submitted", StatusBuilding, StatusSubmitted, true},
		{"submitted to confirmed", StatusSubmitted, StatusConfirmed, true},
		{"confirmed is a sink", StatusConfirmed, StatusRouting, false},
		{"failed is a sink", StatusFailed, StatusRouting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrder_Transition_IdempotentOnceTerminal(t *testing.T) {
	o := NewOrder("WETH", "USDC", decimal.NewFromInt(1), StrategyBestPrice)
	assert.True(t, o.Transition(StatusRouting))
	assert.True(t, o.Transition(StatusFailed))
	assert.True(t, o.Status.Terminal())

	assert.False(t, o.Transition(StatusRouting))
	assert.Equal(t, StatusFailed, o.Status)
}

func TestOrder_Fail_SetsErrorFields(t *testing.T) {
	o := NewOrder("WETH", "USDC", decimal.NewFromInt(1), StrategyBestPrice)
	o.Transition(StatusRouting)

	ok := o.Fail("no_quotes", "no valid quotes received")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, "no_quotes", o.ErrorCode)
	assert.Equal(t, "no valid quotes received", o.ErrorMessage)
}

func TestRoutingStrategy_Normalize(t *testing.T) {
	tests := []struct {
		in       RoutingStrategy
		wantOK   bool
		wantNorm RoutingStrategy
	}{
		{StrategyBestPrice, true, StrategyBestPrice},
		{StrategyLowestSlippage, true, StrategyLowestSlippage},
		{RoutingStrategy("NOT_REAL"), false, StrategyBestPrice},
		{RoutingStrategy(""), false, StrategyBestPrice},
	}

	for _, tt := range tests {
		norm, ok := tt.in.Normalize()
		assert.Equal(t, tt.wantOK, ok)
		assert.Equal(t, tt.wantNorm, norm)
	}
}

func TestTupleFromQuote(t *testing.T) {
	q := Quote{
		Venue: "uniswap", Price: decimal.NewFromInt(3000), Output: decimal.NewFromInt(2990),
		Slippage: 0.003, Liquidity: decimal.NewFromInt(100_000),
	}
	tuple := TupleFromQuote(q)
	assert.Equal(t, "uniswap", tuple.Venue)
	assert.True(t, tuple.Price.Equal(q.Price))
	assert.True(t, tuple.Output.Equal(q.Output))
	assert.Equal(t, q.Slippage, tuple.Slippage)
}
