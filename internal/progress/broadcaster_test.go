package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeSendsConnectedAck(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.C:
		assert.Equal(t, EventConnected, ev.Type)
		assert.Equal(t, sub.ID, ev.ClientID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no connected ack received")
	}
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer b.Unsubscribe(s1)
	defer b.Unsubscribe(s2)

	<-s1.C
	<-s2.C

	b.Publish(Event{Type: EventProgress, Message: "halfway", Current: 5, Total: 10})

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case ev := <-sub.C:
			assert.Equal(t, EventProgress, ev.Type)
			assert.Equal(t, 5, ev.Current)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishSkipsFullSubscriber(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	// Never drain; fill the buffer past capacity. Publish must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Event{Type: EventInfo, Message: "tick"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	require.NotPanics(t, func() { b.Unsubscribe(sub) })
	require.NotPanics(t, func() { b.Unsubscribe(nil) })
	assert.Equal(t, 0, b.SubscriberCount())

	// Channel is closed after unsubscribe; drain must terminate.
	for range sub.C {
	}
}

func TestPublishAfterUnsubscribeDoesNotPanic(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	require.NotPanics(t, func() {
		b.Publish(Event{Type: EventInfo, Message: "late"})
	})
}
