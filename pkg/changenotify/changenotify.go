// Package changenotify is the Change Notifier: a broadcast channel local to
// each node that publishes one event per applied state-machine mutation.
// Adapted from the teacher's pkg/events/events.go Broker, retargeted from
// warren's orchestrator event types to confluxtypes.ChangeEvent.
package changenotify

import (
	"sync"

	"github.com/conflux/conflux/pkg/confluxtypes"
)

// Subscriber is a channel that receives change events.
type Subscriber chan confluxtypes.ChangeEvent

// subscriberBuffer bounds each subscriber's backlog; beyond it, events are
// dropped rather than the publisher blocking (§4.9: "bounded channel with
// drop-oldest semantics").
const subscriberBuffer = 64

// Broker fans out change events to subscribers in applied order. Slow
// subscribers lose events rather than stall the publisher; this is not a
// durable subscription log.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan confluxtypes.ChangeEvent
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a stopped Broker; call Start to begin distribution.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan confluxtypes.ChangeEvent, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop in its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. Subsequent Publish calls are dropped.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues event for distribution. It never blocks past the
// broker's own stop.
func (b *Broker) Publish(event confluxtypes.ChangeEvent) {
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event confluxtypes.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Buffer full: evict the oldest queued event to make room for
			// this one, rather than dropping the event just published.
			// Drop-oldest, not drop-newest (§4.9).
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- event:
			default:
				// Lost a race with the subscriber draining its own
				// channel; give up on this subscriber for this event
				// rather than block the rest of the fan-out.
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
