package quotestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dexrouter/engine/internal/orderdomain"
)

func TestStore_Open_RejectsDuplicate(t *testing.T) {
	s := New()
	assert.True(t, s.Open("order-1", orderdomain.StrategyBestPrice, 4))
	assert.False(t, s.Open("order-1", orderdomain.StrategyBestPrice, 4))
}

func TestStore_AddQuote_TracksReceivedIncludingFailures(t *testing.T) {
	s := New()
	s.Open("order-1", orderdomain.StrategyBestPrice, 3)

	received, expected, ok := s.AddQuote("order-1", orderdomain.Quote{Venue: "uniswap", Output: decimal.NewFromInt(100)})
	assert.True(t, ok)
	assert.Equal(t, 1, received)
	assert.Equal(t, 3, expected)

	received, expected, ok = s.RecordFailure("order-1")
	assert.True(t, ok)
	assert.Equal(t, 2, received, "failures consume a received slot per the completion rule")
	assert.Equal(t, 3, expected)

	received, _, ok = s.AddQuote("order-1", orderdomain.Quote{Venue: "sushiswap", Output: decimal.NewFromInt(99)})
	assert.True(t, ok)
	assert.Equal(t, 3, received)
}

func TestStore_AddQuote_OnUnknownOrderReturnsNotOK(t *testing.T) {
	s := New()
	_, _, ok := s.AddQuote("missing", orderdomain.Quote{})
	assert.False(t, ok)
}

func TestStore_Snapshot_ReturnsIndependentCopy(t *testing.T) {
	s := New()
	s.Open("order-1", orderdomain.StrategyBestPrice, 2)
	s.AddQuote("order-1", orderdomain.Quote{Venue: "uniswap"})

	snap, ok := s.Snapshot("order-1")
	assert.True(t, ok)
	assert.Len(t, snap.Quotes, 1)

	snap.Quotes[0].Venue = "mutated"
	again, _ := s.Snapshot("order-1")
	assert.Equal(t, "uniswap", again.Quotes[0].Venue, "snapshot must not alias internal storage")
}

func TestStore_Close_StopsDeadlineTimerAndIsIdempotent(t *testing.T) {
	s := New()
	s.Open("order-1", orderdomain.StrategyBestPrice, 2)

	fired := make(chan struct{}, 1)
	timer := time.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	s.SetDeadlineTimer("order-1", timer)

	s.Close("order-1")
	s.Close("order-1")

	select {
	case <-fired:
		t.Fatal("deadline timer should have been stopped by Close")
	case <-time.After(30 * time.Millisecond):
	}

	assert.False(t, s.Exists("order-1"))
	_, ok := s.Snapshot("order-1")
	assert.False(t, ok)
}

func TestStore_Exists(t *testing.T) {
	s := New()
	assert.False(t, s.Exists("order-1"))
	s.Open("order-1", orderdomain.StrategyBestPrice, 1)
	assert.True(t, s.Exists("order-1"))
}
