// Package gateway implements the demo HTTP/WebSocket surface for the order
// execution engine: order submission, lookup, cancellation, live event
// streaming per order (spec.md section 4.5), and aggregate statistics
// (spec.md section 4.6). It is a thin translation layer -- all domain logic
// lives in internal/scheduler.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/broadcaster"
	"github.com/dexrouter/engine/internal/enginerr"
	"github.com/dexrouter/engine/internal/orderdomain"
	"github.com/dexrouter/engine/internal/repository"
	"github.com/dexrouter/engine/internal/scheduler"
	"github.com/dexrouter/engine/pkg/observability"
)

// Gateway wires HTTP handlers to the scheduler. It holds no domain state of
// its own.
type Gateway struct {
	scheduler *scheduler.Scheduler
	bus       *broadcaster.Broadcaster
	logger    *observability.Logger
	upgrader  websocket.Upgrader
}

// New builds a Gateway. CheckOrigin is permissive, matching the demo scope
// of this service (spec.md's Non-goals exclude production auth/CORS policy).
func New(sched *scheduler.Scheduler, bus *broadcaster.Broadcaster, logger *observability.Logger) *Gateway {
	return &Gateway{
		scheduler: sched,
		bus:       bus,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes attaches every gateway endpoint to router.
func (g *Gateway) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orders", g.handleSubmitOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders", g.handleListOrders).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", g.handleGetOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}/cancel", g.handleCancelOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}/stream", g.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/stats", g.handleStats).Methods(http.MethodGet)
}

// orderRequestDTO is the JSON wire shape of an order submission, per
// spec.md section 6. It is translated into orderdomain.OrderRequest at the
// boundary so the domain type stays free of encoding concerns.
type orderRequestDTO struct {
	TokenIn         string   `json:"tokenIn"`
	TokenOut        string   `json:"tokenOut"`
	AmountIn        string   `json:"amountIn"`
	OrderType       string   `json:"orderType,omitempty"`
	Slippage        *float64 `json:"slippage,omitempty"`
	RoutingStrategy string   `json:"routingStrategy,omitempty"`
	AutoExecute     *bool    `json:"autoExecute,omitempty"`
}

func (g *Gateway) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var dto orderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, enginerr.New(enginerr.CodeValidation, "malformed request body"))
		return
	}

	amountIn, err := decimal.NewFromString(dto.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, enginerr.New(enginerr.CodeValidation, "amountIn must be a numeric string"))
		return
	}

	req := orderdomain.OrderRequest{
		TokenIn:         dto.TokenIn,
		TokenOut:        dto.TokenOut,
		AmountIn:        amountIn,
		OrderType:       orderdomain.OrderType(dto.OrderType),
		Slippage:        dto.Slippage,
		RoutingStrategy: orderdomain.RoutingStrategy(dto.RoutingStrategy),
		AutoExecute:     dto.AutoExecute,
	}

	order, err := g.scheduler.Submit(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusAccepted, order)
}

func (g *Gateway) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, err := g.scheduler.Order(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, enginerr.New(enginerr.CodeNotFound, "order not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (g *Gateway) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	orders, err := g.scheduler.Orders(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (g *Gateway) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !g.scheduler.Cancel(id) {
		writeError(w, http.StatusConflict, enginerr.New(enginerr.CodeInternal, "order is not cancelable"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.scheduler.Stats())
}

// handleStream upgrades the connection and forwards orderID's event stream
// to the client as newline-delimited JSON frames until the stream closes
// (terminal event reached) or the client disconnects, per spec.md §4.5.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"orderId": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	sub := g.bus.Subscribe(id)
	defer g.bus.Unsubscribe(id, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go g.watchForClose(ctx, conn, cancel)

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchForClose drains client-initiated control frames so gorilla/websocket
// observes the close handshake and unblocks WriteJSON instead of leaking
// the goroutine until an idle timeout.
func (g *Gateway) watchForClose(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(enginerr.CodeOf(err)),
	})
}
