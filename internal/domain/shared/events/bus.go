package events

import (
	"sync"
)

const defaultBufferSize = 16

// Subscription receives the events a subscriber asked for on C. C is closed
// after Unsubscribe or when the bus closes.
type Subscription struct {
	C <-chan DomainEvent

	ch    chan DomainEvent
	types map[string]struct{}
	bus   *Bus
	once  sync.Once
}

func (s *Subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Unsubscribe detaches the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// Bus is an in-process typed observer bus. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	closed      bool
}

// NewBus creates a bus whose subscriptions buffer bufferSize events each.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers for the given event types, or for every event when no
// type is passed. Subscribing to a closed bus yields an already closed channel.
func (b *Bus) Subscribe(eventTypes ...string) *Subscription {
	ch := make(chan DomainEvent, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch, bus: b, types: make(map[string]struct{}, len(eventTypes))}
	for _, t := range eventTypes {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Publish delivers event to every matching subscriber and returns how many
// received it.
func (b *Bus) Publish(event DomainEvent) int {
	if event == nil {
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for sub := range b.subscribers {
		if !sub.wants(event.GetEventType()) {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	sub.once.Do(func() { close(sub.ch) })
}

// Close closes every subscription channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		sub.once.Do(func() { close(sub.ch) })
	}
	b.subscribers = make(map[*Subscription]struct{})
}

// SubscriberCount returns the number of attached subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
