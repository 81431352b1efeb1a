package progress

import (
	"sync"
	"time"

	"storescraper/internal/logger"

	"github.com/google/uuid"
)

const subscriberBuffer = 32

// Subscription is a live client connection handle.
type Subscription struct {
	ID string
	C  <-chan Event

	ch chan Event
}

// Broadcaster fans progress events out to all connected subscribers.
// Delivery is best-effort: a subscriber whose channel is full is skipped,
// never blocked on. Every published event is also mirrored to the console
// log regardless of whether anyone is listening.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
	log  *logger.Logger
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]*Subscription),
		log:  logger.New("Progress"),
	}
}

// Subscribe registers a live connection and queues the initial connected ack
// carrying the generated client id.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ID: uuid.New().String(),
		ch: make(chan Event, subscriberBuffer),
	}
	sub.C = sub.ch

	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	sub.ch <- Event{
		Type:      EventConnected,
		Message:   "connected to progress stream",
		ClientID:  sub.ID,
		Timestamp: time.Now(),
	}

	b.log.LogInfof("subscriber %s connected (%d active)", sub.ID, count)
	return sub
}

// Unsubscribe removes a subscription. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	_, exists := b.subs[sub.ID]
	if exists {
		delete(b.subs, sub.ID)
		close(sub.ch)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if exists {
		b.log.LogInfof("subscriber %s disconnected (%d active)", sub.ID, count)
	}
}

// Publish delivers ev to every subscriber able to accept it right now.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mirror(ev)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow or gone subscriber; events are transient notifications,
			// not durable messages.
		}
	}
}

// SubscriberCount reports the number of live connections.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) mirror(ev Event) {
	msg := ev.Message
	if ev.Category != "" {
		msg = "[" + ev.Category + "] " + msg
	}
	switch ev.Type {
	case EventSuccess, EventComplete:
		b.log.LogSuccess(msg)
	case EventWarning:
		b.log.LogWarn(msg)
	case EventError:
		b.log.LogError(msg, nil)
	default:
		b.log.LogInfo(msg)
	}
}
