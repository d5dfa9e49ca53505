package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dexrouter/engine/internal/orderdomain"
)

func TestRegistry_RecordQuoteOutcomes(t *testing.T) {
	r := New()
	r.RecordQuoteSuccess("uniswap")
	r.RecordQuoteSuccess("uniswap")
	r.RecordQuoteFailure("sushiswap")

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.QuotesSucceeded)
	assert.Equal(t, int64(1), snap.QuotesFailed)
	assert.Equal(t, int64(2), snap.VenueSuccess["uniswap"])
	assert.Equal(t, int64(1), snap.VenueFailure["sushiswap"])
}

func TestRegistry_RecordOrderCompletion_TracksMeanCollectionDuration(t *testing.T) {
	r := New()
	r.RecordOrderCompletion(2*time.Second, true)
	r.RecordOrderCompletion(4*time.Second, false)

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TotalOrders)
	assert.Equal(t, int64(1), snap.SuccessfulExecutions)
	assert.Equal(t, int64(1), snap.FailedExecutions)
	assert.Equal(t, float64(3000), snap.MeanCollectionMs())
}

func TestRegistry_MeanCollectionMs_ZeroWhenNoOrders(t *testing.T) {
	r := New()
	assert.Equal(t, float64(0), r.Snapshot().MeanCollectionMs())
}

func TestRegistry_RecordStrategyUsage(t *testing.T) {
	r := New()
	r.RecordStrategyUsage(orderdomain.StrategyBestPrice)
	r.RecordStrategyUsage(orderdomain.StrategyBestPrice)
	r.RecordStrategyUsage(orderdomain.StrategyLowestSlippage)

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.StrategyInvocations[orderdomain.StrategyBestPrice])
	assert.Equal(t, int64(1), snap.StrategyInvocations[orderdomain.StrategyLowestSlippage])
}

func TestRegistry_RecordAnalysis_EvictsOldestBeyondCapacity(t *testing.T) {
	r := New()
	for i := 0; i < maxRecentAnalyses+10; i++ {
		r.RecordAnalysis(AnalysisSnapshot{OrderID: string(rune('a' + i%26))})
	}

	snap := r.Snapshot()
	assert.Len(t, snap.RecentAnalyses, maxRecentAnalyses)
}

func TestRegistry_Snapshot_IsIndependentCopy(t *testing.T) {
	r := New()
	r.RecordQuoteSuccess("uniswap")

	snap := r.Snapshot()
	snap.VenueSuccess["uniswap"] = 999

	again := r.Snapshot()
	assert.Equal(t, int64(1), again.VenueSuccess["uniswap"], "mutating a snapshot must not affect the registry")
}
