// Package stats implements the statistics registry (C6): cumulative
// counters updated on every scheduler completion, exposed as a read-only
// snapshot cheap enough to compute on every health probe (spec.md §4.6).
package stats

import (
	"sync"
	"time"

	"github.com/dexrouter/engine/internal/orderdomain"
)

// Snapshot is the read-only view returned by Registry.Snapshot.
type Snapshot struct {
	TotalOrders            int64
	QuotesSucceeded        int64
	QuotesFailed           int64
	VenueSuccess           map[string]int64
	VenueFailure           map[string]int64
	StrategyInvocations    map[orderdomain.RoutingStrategy]int64
	SuccessfulExecutions   int64
	FailedExecutions       int64
	SwapRetries            int64
	CumulativeCollectionMs int64
	RecentAnalyses         []AnalysisSnapshot
}

// MeanCollectionMs returns the mean quote-collection duration across all
// completed orders, or zero if none completed yet.
func (s Snapshot) MeanCollectionMs() float64 {
	if s.TotalOrders == 0 {
		return 0
	}
	return float64(s.CumulativeCollectionMs) / float64(s.TotalOrders)
}

// AnalysisSnapshot records one hub.Analyze() call for the recent-history
// ring buffer (supplemented feature, SPEC_FULL.md section 4: "Market
// analysis snapshot persistence").
type AnalysisSnapshot struct {
	OrderID       string
	TotalQuotes   int
	Recommendation string
	Timestamp     time.Time
}

const maxRecentAnalyses = 50

// Registry is the single cross-order shared mutable state in the engine
// (spec.md §5); all updates are atomic counter operations guarded by one
// mutex.
type Registry struct {
	mu sync.Mutex

	totalOrders            int64
	quotesSucceeded        int64
	quotesFailed            int64
	venueSuccess           map[string]int64
	venueFailure           map[string]int64
	strategyInvocations    map[orderdomain.RoutingStrategy]int64
	successfulExecutions   int64
	failedExecutions       int64
	swapRetries            int64
	cumulativeCollectionMs int64
	recentAnalyses         []AnalysisSnapshot
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		venueSuccess:        make(map[string]int64),
		venueFailure:        make(map[string]int64),
		strategyInvocations: make(map[orderdomain.RoutingStrategy]int64),
	}
}

// RecordQuoteSuccess increments the success counters for venue.
func (r *Registry) RecordQuoteSuccess(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotesSucceeded++
	r.venueSuccess[venue]++
}

// RecordQuoteFailure increments the failure counters for venue.
func (r *Registry) RecordQuoteFailure(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotesFailed++
	r.venueFailure[venue]++
}

// RecordStrategyUsage tallies one invocation of strategy.
func (r *Registry) RecordStrategyUsage(strategy orderdomain.RoutingStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategyInvocations[strategy]++
}

// RecordOrderCompletion finalizes one order's statistics: collection
// duration and terminal outcome.
func (r *Registry) RecordOrderCompletion(collectionDuration time.Duration, succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalOrders++
	r.cumulativeCollectionMs += collectionDuration.Milliseconds()
	if succeeded {
		r.successfulExecutions++
	} else {
		r.failedExecutions++
	}
}

// RecordSwapRetry tallies one consumed swap-job retry attempt.
func (r *Registry) RecordSwapRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapRetries++
}

// RecordAnalysis appends one hub.Analyze() result to the bounded recent
// history, evicting the oldest entry once full.
func (r *Registry) RecordAnalysis(snap AnalysisSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recentAnalyses = append(r.recentAnalyses, snap)
	if len(r.recentAnalyses) > maxRecentAnalyses {
		r.recentAnalyses = r.recentAnalyses[len(r.recentAnalyses)-maxRecentAnalyses:]
	}
}

// Snapshot returns a consistent, read-only copy of all counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	venueSuccess := make(map[string]int64, len(r.venueSuccess))
	for k, v := range r.venueSuccess {
		venueSuccess[k] = v
	}
	venueFailure := make(map[string]int64, len(r.venueFailure))
	for k, v := range r.venueFailure {
		venueFailure[k] = v
	}
	strategyInvocations := make(map[orderdomain.RoutingStrategy]int64, len(r.strategyInvocations))
	for k, v := range r.strategyInvocations {
		strategyInvocations[k] = v
	}

	return Snapshot{
		TotalOrders:            r.totalOrders,
		QuotesSucceeded:        r.quotesSucceeded,
		QuotesFailed:           r.quotesFailed,
		VenueSuccess:           venueSuccess,
		VenueFailure:           venueFailure,
		StrategyInvocations:    strategyInvocations,
		SuccessfulExecutions:   r.successfulExecutions,
		FailedExecutions:       r.failedExecutions,
		SwapRetries:            r.swapRetries,
		CumulativeCollectionMs: r.cumulativeCollectionMs,
		RecentAnalyses:         append([]AnalysisSnapshot(nil), r.recentAnalyses...),
	}
}
