package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/orderdomain"
	"github.com/dexrouter/engine/pkg/database"
)

// PostgresOrderRepository implements OrderRepository on top of the
// teacher's generic *database.DB connection wrapper (pooling, query
// caching, health monitoring carried forward unchanged).
type PostgresOrderRepository struct {
	db *database.DB
}

// NewPostgresOrderRepository wraps an already-connected *database.DB.
func NewPostgresOrderRepository(db *database.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	token_in        TEXT NOT NULL,
	token_out       TEXT NOT NULL,
	amount_in       NUMERIC NOT NULL,
	order_type      TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	status          TEXT NOT NULL,
	retry_count     INT NOT NULL DEFAULT 0,
	selected_venue  TEXT,
	executed_price  NUMERIC,
	amount_out      NUMERIC,
	tx_hash         TEXT,
	error_message   TEXT,
	error_code      TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the orders table if it does not already exist.
func (r *PostgresOrderRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, ordersSchema)
	return err
}

func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *orderdomain.Order) error {
	_, err := r.db.ExecWithMetrics(ctx, `
		INSERT INTO orders (id, token_in, token_out, amount_in, order_type, strategy, status,
			retry_count, selected_venue, executed_price, amount_out, tx_hash, error_message,
			error_code, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		order.ID, order.TokenIn, order.TokenOut, order.AmountIn.String(), string(order.Type),
		string(order.Strategy), string(order.Status), order.RetryCount, nullableString(order.SelectedVenue),
		nullableDecimal(order.ExecutedPrice), nullableDecimal(order.AmountOut), nullableString(order.TxHash),
		nullableString(order.ErrorMessage), nullableString(order.ErrorCode), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetOrderByID(ctx context.Context, id string) (*orderdomain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token_in, token_out, amount_in, order_type, strategy, status, retry_count,
			selected_venue, executed_price, amount_out, tx_hash, error_message, error_code,
			created_at, updated_at
		FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) UpdateOrder(ctx context.Context, order *orderdomain.Order) error {
	_, err := r.db.ExecWithMetrics(ctx, `
		UPDATE orders SET token_in=$2, token_out=$3, amount_in=$4, order_type=$5, strategy=$6,
			status=$7, retry_count=$8, selected_venue=$9, executed_price=$10, amount_out=$11,
			tx_hash=$12, error_message=$13, error_code=$14, updated_at=$15
		WHERE id=$1`,
		order.ID, order.TokenIn, order.TokenOut, order.AmountIn.String(), string(order.Type),
		string(order.Strategy), string(order.Status), order.RetryCount, nullableString(order.SelectedVenue),
		nullableDecimal(order.ExecutedPrice), nullableDecimal(order.AmountOut), nullableString(order.TxHash),
		nullableString(order.ErrorMessage), nullableString(order.ErrorCode), order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// UpdateOrderStatus applies a targeted status transition plus an optional
// patch of outcome fields, avoiding a full read-modify-write for the
// common case of a venue worker advancing one order's stage.
func (r *PostgresOrderRepository) UpdateOrderStatus(ctx context.Context, id string, status orderdomain.Status, patch map[string]interface{}) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal status patch: %w", err)
	}

	_, err = r.db.ExecWithMetrics(ctx, `
		UPDATE orders SET status=$2,
			selected_venue = COALESCE($3::text, selected_venue),
			tx_hash = COALESCE($4::text, tx_hash),
			error_message = COALESCE($5::text, error_message),
			error_code = COALESCE($6::text, error_code),
			updated_at = now()
		WHERE id=$1`,
		id, string(status),
		patchString(patch, "selectedVenue"), patchString(patch, "txHash"),
		patchString(patch, "errorMessage"), patchString(patch, "errorCode"),
	)
	_ = patchJSON // patch also carries numeric fields handled by UpdateOrder on full writes
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetOrders(ctx context.Context, limit, offset int) ([]*orderdomain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token_in, token_out, amount_in, order_type, strategy, status, retry_count,
			selected_venue, executed_price, amount_out, tx_hash, error_message, error_code,
			created_at, updated_at
		FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	defer rows.Close()

	var orders []*orderdomain.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(scan func(dest ...interface{}) error) (*orderdomain.Order, error) {
	var (
		o                                                    orderdomain.Order
		amountIn, executedPrice, amountOut                   sql.NullString
		orderType, strategy, status                          string
		selectedVenue, txHash, errorMessage, errorCode       sql.NullString
	)

	err := scan(&o.ID, &o.TokenIn, &o.TokenOut, &amountIn, &orderType, &strategy, &status,
		&o.RetryCount, &selectedVenue, &executedPrice, &amountOut, &txHash, &errorMessage,
		&errorCode, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Type = orderdomain.OrderType(orderType)
	o.Strategy = orderdomain.RoutingStrategy(strategy)
	o.Status = orderdomain.Status(status)
	o.SelectedVenue = selectedVenue.String
	o.TxHash = txHash.String
	o.ErrorMessage = errorMessage.String
	o.ErrorCode = errorCode.String
	o.AmountIn = parseDecimal(amountIn.String)
	o.ExecutedPrice = parseDecimal(executedPrice.String)
	o.AmountOut = parseDecimal(amountOut.String)

	return &o, nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableDecimal(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func patchString(patch map[string]interface{}, key string) interface{} {
	if v, ok := patch[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return nil
}
