package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/orderdomain"
	"github.com/dexrouter/engine/pkg/database"
)

// RedisActiveOrderCache implements ActiveOrderCache on top of the
// teacher's generic *database.RedisClient wrapper (pooling, metrics,
// layered-cache helpers carried forward). Active orders always live in the
// hottest layer since they are read on every status-stream tick.
type RedisActiveOrderCache struct {
	client *database.RedisClient
	ttl    string
}

// NewRedisActiveOrderCache wraps an already-connected *database.RedisClient.
func NewRedisActiveOrderCache(client *database.RedisClient) *RedisActiveOrderCache {
	return &RedisActiveOrderCache{client: client}
}

type activeOrderRecord struct {
	ID            string `json:"id"`
	TokenIn       string `json:"tokenIn"`
	TokenOut      string `json:"tokenOut"`
	AmountIn      string `json:"amountIn"`
	OrderType     string `json:"orderType"`
	Strategy      string `json:"strategy"`
	Status        string `json:"status"`
	RetryCount    int    `json:"retryCount"`
	SelectedVenue string `json:"selectedVenue"`
	ExecutedPrice string `json:"executedPrice"`
	AmountOut     string `json:"amountOut"`
	TxHash        string `json:"txHash"`
	ErrorMessage  string `json:"errorMessage"`
	ErrorCode     string `json:"errorCode"`
}

func toRecord(o *orderdomain.Order) activeOrderRecord {
	return activeOrderRecord{
		ID: o.ID, TokenIn: o.TokenIn, TokenOut: o.TokenOut, AmountIn: o.AmountIn.String(),
		OrderType: string(o.Type), Strategy: string(o.Strategy), Status: string(o.Status),
		RetryCount: o.RetryCount, SelectedVenue: o.SelectedVenue, ExecutedPrice: o.ExecutedPrice.String(),
		AmountOut: o.AmountOut.String(), TxHash: o.TxHash, ErrorMessage: o.ErrorMessage, ErrorCode: o.ErrorCode,
	}
}

func fromRecord(rec activeOrderRecord) *orderdomain.Order {
	price, _ := decimal.NewFromString(rec.ExecutedPrice)
	amountIn, _ := decimal.NewFromString(rec.AmountIn)
	amountOut, _ := decimal.NewFromString(rec.AmountOut)
	return &orderdomain.Order{
		ID: rec.ID, TokenIn: rec.TokenIn, TokenOut: rec.TokenOut, AmountIn: amountIn,
		Type: orderdomain.OrderType(rec.OrderType), Strategy: orderdomain.RoutingStrategy(rec.Strategy),
		Status: orderdomain.Status(rec.Status), RetryCount: rec.RetryCount, SelectedVenue: rec.SelectedVenue,
		ExecutedPrice: price, AmountOut: amountOut, TxHash: rec.TxHash, ErrorMessage: rec.ErrorMessage,
		ErrorCode: rec.ErrorCode,
	}
}

func activeOrderKey(id string) string {
	return "active_order:" + id
}

func (c *RedisActiveOrderCache) SetActiveOrder(ctx context.Context, order *orderdomain.Order) error {
	return c.client.SetLayered(ctx, activeOrderKey(order.ID), toRecord(order), database.L1Cache)
}

func (c *RedisActiveOrderCache) GetActiveOrder(ctx context.Context, id string) (*orderdomain.Order, error) {
	raw, found, err := c.client.GetLayered(ctx, activeOrderKey(id))
	if err != nil {
		return nil, fmt.Errorf("get active order: %w", err)
	}
	if !found {
		return nil, ErrOrderNotFound
	}

	// GetLayered round-trips through JSON, so raw is already the decoded
	// interface{} value; re-marshal/unmarshal into the concrete struct.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal active order: %w", err)
	}
	var rec activeOrderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode active order: %w", err)
	}
	return fromRecord(rec), nil
}

func (c *RedisActiveOrderCache) UpdateActiveOrder(ctx context.Context, order *orderdomain.Order) error {
	return c.SetActiveOrder(ctx, order)
}

func (c *RedisActiveOrderCache) IsHealthy(ctx context.Context) bool {
	return c.client.Health(ctx) == nil
}

func (c *RedisActiveOrderCache) Close() error {
	return c.client.Close()
}
