// Package broadcaster implements the session broadcaster (C5): it
// subscribes a streaming session to one order's event feed and forwards
// every event in emission order, per spec.md section 4.5.
package broadcaster

import (
	"sync"

	"github.com/dexrouter/engine/internal/orderdomain"
)

// subscriberBuffer bounds how many unconsumed events a slow client may
// accumulate before it is dropped outright (spec.md §5: "drop the client,
// not the events" -- other subscribers of the same order are unaffected).
const subscriberBuffer = 64

// Subscription is a session's view of one order's event stream. Callers
// unregister it via Broadcaster.Unsubscribe, which owns the channel and
// coordinates with concurrent publishes.
type Subscription struct {
	Events <-chan orderdomain.Event
}

// Broadcaster fans out each order's totally-ordered event stream to every
// session currently subscribed to that order. Different orders' streams
// are independent and may interleave freely.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]chan orderdomain.Event
	lastEvent   map[string]orderdomain.Event
	known       map[string]bool
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[*Subscription]chan orderdomain.Event),
		lastEvent:   make(map[string]orderdomain.Event),
		known:       make(map[string]bool),
	}
}

// MarkKnown registers orderID as existing, so a later Subscribe before any
// event has been published does not look like not_found. Called by the
// scheduler when it opens a new order.
func (b *Broadcaster) MarkKnown(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.known[orderID] = true
}

// Subscribe attaches a session to orderID's event feed. If the order has
// never been seen, the returned subscription carries a single error event
// and is already closed. If the order is already terminal, the
// subscription replays the last known terminal event and closes.
// Otherwise future events are delivered live via Subscription.Events.
func (b *Broadcaster) Subscribe(orderID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan orderdomain.Event, subscriberBuffer)
	sub := &Subscription{Events: ch}

	if !b.known[orderID] {
		ch <- orderdomain.Event{OrderID: orderID, Type: orderdomain.EventError, Error: "not_found"}
		close(ch)
		return sub
	}

	if last, ok := b.lastEvent[orderID]; ok && isTerminalEvent(last) {
		ch <- last
		close(ch)
		return sub
	}

	if b.subscribers[orderID] == nil {
		b.subscribers[orderID] = make(map[*Subscription]chan orderdomain.Event)
	}
	b.subscribers[orderID][sub] = ch
	return sub
}

// Unsubscribe detaches sub from orderID's feed and closes its channel.
// Safe to call on client disconnect or after the stream ends naturally.
func (b *Broadcaster) Unsubscribe(orderID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[orderID]
	if !ok {
		return
	}
	if ch, ok := subs[sub]; ok {
		delete(subs, sub)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.subscribers, orderID)
	}
}

// Publish forwards e to every current subscriber of e.OrderID, in call
// order, and records it as the order's last known event for reconnect /
// terminal-replay. A subscriber whose buffer is full is dropped rather
// than allowed to stall the others. Events published after the order's
// terminal event are dropped.
func (b *Broadcaster) Publish(e orderdomain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.known[e.OrderID] = true
	if last, ok := b.lastEvent[e.OrderID]; ok && isTerminalEvent(last) {
		return
	}
	b.lastEvent[e.OrderID] = e

	subs := b.subscribers[e.OrderID]
	for sub, ch := range subs {
		select {
		case ch <- e:
		default:
			delete(subs, sub)
			close(ch)
		}
	}

	if isTerminalEvent(e) {
		for sub, ch := range subs {
			delete(subs, sub)
			close(ch)
		}
		delete(b.subscribers, e.OrderID)
	}
}

func isTerminalEvent(e orderdomain.Event) bool {
	return e.Type == orderdomain.EventConfirmed || e.Type == orderdomain.EventFailed
}
