package orderdomain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType mirrors the status stream in spec.md section 6. It does not map
// one-to-one onto Status: some events (quote_received, quote_failed,
// quotes_collected, dex_selected) are progress markers within the
// `routing`/`processing` states, which have no event type of their own, and
// `error` is not an order status.
type EventType string

const (
	EventPending          EventType = "pending"
	EventQuoteReceived    EventType = "quote_received"
	EventQuoteFailed      EventType = "quote_failed"
	EventQuotesCollected  EventType = "quotes_collected"
	EventDexSelected      EventType = "dex_selected"
	EventBuilding         EventType = "building"
	EventSubmitted        EventType = "submitted"
	EventConfirmed        EventType = "confirmed"
	EventFailed           EventType = "failed"
	EventError            EventType = "error"
)

// QuotePayload is the quote{...} sub-object carried by quote_received.
type QuotePayload struct {
	Price            decimal.Decimal `json:"price"`
	EstimatedOutput  decimal.Decimal `json:"estimatedOutput"`
	Slippage         float64         `json:"slippage"`
	Liquidity        decimal.Decimal `json:"liquidity"`
}

// RoutePayload describes a selected or alternative route.
type RoutePayload struct {
	Dex             string          `json:"dex"`
	EstimatedOutput decimal.Decimal `json:"estimatedOutput"`
	Slippage        float64         `json:"slippage"`
	Liquidity       decimal.Decimal `json:"liquidity"`
	Price           decimal.Decimal `json:"price"`
}

// Event is one entry in an order's totally-ordered event stream (§4.5, §5).
// Fields are a superset across all status payloads in spec.md's table;
// unused fields are left zero for a given EventType.
type Event struct {
	OrderID   string    `json:"orderId"`
	Type      EventType `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Dex             string        `json:"dex,omitempty"`
	Quote           *QuotePayload `json:"quote,omitempty"`
	QuotesReceived  int           `json:"quotesReceived,omitempty"`
	TotalExpected   int           `json:"totalExpected,omitempty"`

	Quotes      []QuotePayload `json:"quotes,omitempty"`
	ValidQuotes int            `json:"validQuotes,omitempty"`
	TotalReceived int          `json:"totalReceived,omitempty"`

	SelectedRoute     *RoutePayload   `json:"selectedRoute,omitempty"`
	Strategy          RoutingStrategy `json:"strategy,omitempty"`
	MarketMetrics     interface{}     `json:"marketMetrics,omitempty"`
	AlternativeRoutes interface{}     `json:"alternativeRoutes,omitempty"`

	Stage  string `json:"stage,omitempty"`
	TxHash string `json:"txHash,omitempty"`

	AmountOut     decimal.Decimal `json:"amountOut,omitempty"`
	ExecutedPrice decimal.Decimal `json:"executedPrice,omitempty"`
}

// NewEvent stamps an event with the current time for a given order.
func NewEvent(orderID string, t EventType) Event {
	return Event{OrderID: orderID, Type: t, Timestamp: time.Now()}
}
