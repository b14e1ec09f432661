package provider

import (
	"sync"

	"talent-hub/backend/internal/authevent"
)

// Bus is an in-process authevent.Source. The provider transport (or a test)
// pushes events in arrival order; subscribers receive them synchronously on
// the emitting goroutine, so arrival order is preserved.
type Bus struct {
	mu       sync.Mutex
	handlers map[int]authevent.Handler
	next     int
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]authevent.Handler)}
}

// Subscribe registers handler and returns an idempotent unsubscribe func.
func (b *Bus) Subscribe(handler authevent.Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers ev to all current subscribers.
func (b *Bus) Emit(ev authevent.Event) {
	b.mu.Lock()
	hs := make([]authevent.Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}
