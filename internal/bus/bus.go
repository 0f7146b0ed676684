package bus

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Delivery is synchronous and follows registration order.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	next   int
	logger *zap.Logger
}

type subscription struct {
	id        int
	namespace string
	handler   Handler
}

// New creates a new event bus. A nil logger discards handler panics silently.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Publish delivers evt to every subscriber whose namespace is a prefix of
// evt.Kind. Subscribers are taken from a snapshot, so handlers may subscribe
// or unsubscribe while the event is in flight.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if !b.active(sub.id) {
			continue
		}
		b.deliver(sub, evt)
	}
}

// Subscribe registers handler for events matching the namespace prefix.
// The returned function removes the subscription; calling it more than once
// is a no-op.
func (b *Bus) Subscribe(namespace string, handler Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, &subscription{id: id, namespace: namespace, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// active reports whether the subscription is still registered. A handler
// removed earlier in the same dispatch must not see the event.
func (b *Bus) active(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("kind", evt.Kind),
				zap.String("namespace", sub.namespace),
				zap.Any("panic", r))
		}
	}()
	sub.handler(evt)
}
