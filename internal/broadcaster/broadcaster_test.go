package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexrouter/engine/internal/orderdomain"
)

func drain(t *testing.T, sub *Subscription, n int) []orderdomain.Event {
	t.Helper()
	events := make([]orderdomain.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return events
}

func TestBroadcaster_Subscribe_UnknownOrderReturnsNotFound(t *testing.T) {
	b := New()
	sub := b.Subscribe("missing")
	events := drain(t, sub, 1)
	require.Len(t, events, 1)
	assert.Equal(t, orderdomain.EventError, events[0].Type)
	assert.Equal(t, "not_found", events[0].Error)
}

func TestBroadcaster_Publish_DeliversInOrderToLiveSubscriber(t *testing.T) {
	b := New()
	b.MarkKnown("order-1")
	sub := b.Subscribe("order-1")

	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventPending})
	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventQuoteReceived})
	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventConfirmed})

	events := drain(t, sub, 3)
	require.Len(t, events, 3)
	assert.Equal(t, orderdomain.EventPending, events[0].Type)
	assert.Equal(t, orderdomain.EventQuoteReceived, events[1].Type)
	assert.Equal(t, orderdomain.EventConfirmed, events[2].Type)
}

func TestBroadcaster_Subscribe_AfterTerminalReplaysLastEvent(t *testing.T) {
	b := New()
	b.MarkKnown("order-1")
	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventFailed, Error: "no_quotes"})

	sub := b.Subscribe("order-1")
	events := drain(t, sub, 1)
	require.Len(t, events, 1)
	assert.Equal(t, orderdomain.EventFailed, events[0].Type)
	assert.Equal(t, "no_quotes", events[0].Error)

	_, open := <-sub.Events
	assert.False(t, open, "post-terminal subscription must close after replay")
}

func TestBroadcaster_Publish_DropsSlowSubscriberWithoutAffectingOthers(t *testing.T) {
	b := New()
	b.MarkKnown("order-1")
	slow := b.Subscribe("order-1")
	fast := b.Subscribe("order-1")

	fastSeen := make(chan orderdomain.Event, subscriberBuffer+10)
	go func() {
		for e := range fast.Events {
			fastSeen <- e
		}
		close(fastSeen)
	}()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventQuoteReceived})
	}
	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventConfirmed})

	found := false
	for e := range fastSeen {
		if e.Type == orderdomain.EventConfirmed {
			found = true
		}
	}
	assert.True(t, found, "fast subscriber keeps receiving events after a slow one is dropped")

	slowSeen := 0
	for range slow.Events {
		slowSeen++
	}
	assert.Equal(t, subscriberBuffer, slowSeen, "slow subscriber was dropped once its buffer filled")
}

func TestBroadcaster_Unsubscribe_ClosesChannelAndStopsDelivery(t *testing.T) {
	b := New()
	b.MarkKnown("order-1")
	sub := b.Subscribe("order-1")
	b.Unsubscribe("order-1", sub)

	_, open := <-sub.Events
	assert.False(t, open)

	assert.NotPanics(t, func() {
		b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventPending})
	})
}

func TestBroadcaster_Publish_TerminalEventClosesAllSubscribers(t *testing.T) {
	b := New()
	b.MarkKnown("order-1")
	a := b.Subscribe("order-1")
	c := b.Subscribe("order-1")

	b.Publish(orderdomain.Event{OrderID: "order-1", Type: orderdomain.EventConfirmed})

	drain(t, a, 1)
	drain(t, c, 1)

	_, openA := <-a.Events
	_, openC := <-c.Events
	assert.False(t, openA)
	assert.False(t, openC)
}
