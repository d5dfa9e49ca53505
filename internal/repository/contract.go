// Package repository defines the narrow persistence contracts the core
// depends on (spec.md section 6: "Repository contract", "Active-order
// cache contract") plus concrete Postgres/Redis implementations of them.
// The core never imports database/sql or the redis client directly --
// only these interfaces.
package repository

import (
	"context"

	"github.com/dexrouter/engine/internal/orderdomain"
)

// OrderRepository is the persistence collaborator for orders. All
// operations are fallible; the core treats transient errors as retryable.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *orderdomain.Order) error
	GetOrderByID(ctx context.Context, id string) (*orderdomain.Order, error)
	UpdateOrder(ctx context.Context, order *orderdomain.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status orderdomain.Status, patch map[string]interface{}) error
	GetOrders(ctx context.Context, limit, offset int) ([]*orderdomain.Order, error)
}

// ActiveOrderCache is a read-through cache for hot (non-terminal) orders.
// The repository remains authoritative; the cache only accelerates reads.
type ActiveOrderCache interface {
	SetActiveOrder(ctx context.Context, order *orderdomain.Order) error
	GetActiveOrder(ctx context.Context, id string) (*orderdomain.Order, error)
	UpdateActiveOrder(ctx context.Context, order *orderdomain.Order) error
	IsHealthy(ctx context.Context) bool
	Close() error
}

// ErrOrderNotFound is returned by GetOrderByID/GetActiveOrder when the
// order does not exist.
var ErrOrderNotFound = orderNotFoundError{}

type orderNotFoundError struct{}

func (orderNotFoundError) Error() string { return "order not found" }
