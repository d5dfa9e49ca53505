// Package quotestore holds the scheduler's per-order pending collection:
// the transient record of in-progress quote gathering described in
// spec.md section 3 ("Pending collection").
package quotestore

import (
	"sync"
	"time"

	"github.com/dexrouter/engine/internal/orderdomain"
)

// Pending is one order's in-progress quote collection. DeadlineTimer is a
// timer handle owned by the scheduler; the store only stops it when the
// collection is closed. All field access goes through Store's lock -- Pending is never
// handed out for direct mutation.
type Pending struct {
	OrderID       string
	Strategy      orderdomain.RoutingStrategy
	Expected      int
	Received      int
	Quotes        []orderdomain.Quote
	StartedAt     time.Time
	DeadlineTimer *time.Timer
}

// Store is the keyed table of pending collections, one per in-flight
// order. Writes are scoped per key via a single mutex; contention is
// acceptable since collections are short-lived and the hot path (quote
// arrival) only touches its own entry briefly.
type Store struct {
	mu       sync.Mutex
	pendings map[string]*Pending
}

// New creates an empty quote store.
func New() *Store {
	return &Store{pendings: make(map[string]*Pending)}
}

// Open creates a pending collection for orderID, expecting `expected`
// venue responses under `strategy`. Returns false if one already exists.
func (s *Store) Open(orderID string, strategy orderdomain.RoutingStrategy, expected int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pendings[orderID]; exists {
		return false
	}
	s.pendings[orderID] = &Pending{
		OrderID:   orderID,
		Strategy:  strategy,
		Expected:  expected,
		StartedAt: time.Now(),
	}
	return true
}

// SetDeadlineTimer attaches the scheduler's deadline timer to an open
// collection, so Close can cancel it on early completion.
func (s *Store) SetDeadlineTimer(orderID string, timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pendings[orderID]; ok {
		p.DeadlineTimer = timer
	}
}

// AddQuote records a successful quote arrival and returns the updated
// received/expected counts, or ok=false if the collection no longer
// exists (already closed).
func (s *Store) AddQuote(orderID string, q orderdomain.Quote) (received, expected int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pendings[orderID]
	if !exists {
		return 0, 0, false
	}
	p.Quotes = append(p.Quotes, q)
	p.Received++
	return p.Received, p.Expected, true
}

// RecordFailure records a venue failure as consuming a slot in received
// count (received_count "includes failures", spec.md §3) without adding a
// quote tuple.
func (s *Store) RecordFailure(orderID string) (received, expected int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pendings[orderID]
	if !exists {
		return 0, 0, false
	}
	p.Received++
	return p.Received, p.Expected, true
}

// Snapshot returns a shallow copy of the pending collection's state for
// read-only use (e.g. completion-rule evaluation, quotes_collected
// payload). Returns ok=false if no collection exists for orderID.
func (s *Store) Snapshot(orderID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pendings[orderID]
	if !exists {
		return Pending{}, false
	}
	cp := *p
	cp.Quotes = append([]orderdomain.Quote(nil), p.Quotes...)
	return cp, true
}

// Close releases the pending collection for orderID, stopping its deadline
// timer if one is set. Idempotent: closing twice is a no-op.
func (s *Store) Close(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.pendings[orderID]
	if !exists {
		return
	}
	if p.DeadlineTimer != nil {
		p.DeadlineTimer.Stop()
	}
	delete(s.pendings, orderID)
}

// Exists reports whether a pending collection is open for orderID --
// equivalently, "the order is in the quote-collection phase" (§3 invariant).
func (s *Store) Exists(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendings[orderID]
	return ok
}
