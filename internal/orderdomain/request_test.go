package orderdomain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexrouter/engine/internal/enginerr"
)

func TestOrderRequest_Validate(t *testing.T) {
	slippageOK := 0.1
	slippageTooHigh := 0.9

	tests := []struct {
		name    string
		req     OrderRequest
		wantErr bool
	}{
		{
			name: "valid minimal request",
			req: OrderRequest{
				TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
			},
			wantErr: false,
		},
		{
			name:    "missing tokenIn",
			req:     OrderRequest{TokenOut: "USDC", AmountIn: decimal.NewFromInt(1)},
			wantErr: true,
		},
		{
			name:    "tokenIn equals tokenOut",
			req:     OrderRequest{TokenIn: "WETH", TokenOut: "WETH", AmountIn: decimal.NewFromInt(1)},
			wantErr: true,
		},
		{
			name:    "zero amount",
			req:     OrderRequest{TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.Zero},
			wantErr: true,
		},
		{
			name:    "amount exceeds maximum",
			req:     OrderRequest{TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(2_000_000)},
			wantErr: true,
		},
		{
			name: "slippage within bounds",
			req: OrderRequest{
				TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1), Slippage: &slippageOK,
			},
			wantErr: false,
		},
		{
			name: "slippage exceeds maximum",
			req: OrderRequest{
				TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1), Slippage: &slippageTooHigh,
			},
			wantErr: true,
		},
		{
			name: "unrecognized routing strategy",
			req: OrderRequest{
				TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1),
				RoutingStrategy: RoutingStrategy("NOT_A_STRATEGY"),
			},
			wantErr: true,
		},
		{
			name: "non-market order type",
			req: OrderRequest{
				TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(1), OrderType: OrderType("limit"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, enginerr.CodeValidation, enginerr.CodeOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOrderRequest_Defaults(t *testing.T) {
	req := OrderRequest{}
	assert.True(t, req.AutoExecuteOrDefault())
	assert.Equal(t, StrategyBestPrice, req.StrategyOrDefault())

	autoExec := false
	req.AutoExecute = &autoExec
	assert.False(t, req.AutoExecuteOrDefault())
}

func TestNewOrderFromRequest(t *testing.T) {
	req := OrderRequest{
		TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.NewFromInt(5),
		RoutingStrategy: StrategyLowestSlippage,
	}
	order := NewOrderFromRequest(req)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, StrategyLowestSlippage, order.Strategy)
	assert.Equal(t, OrderTypeMarket, order.Type)
}
