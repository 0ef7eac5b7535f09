package bus

import (
	"context"
	"sync"

	"github.com/pulsechat/pulse/api/metrics"
)

// MemoryBus is a process-local Bus for tests and single-instance
// deployments. Publish dispatches synchronously on the caller's goroutine,
// which preserves per-publisher order the same way a broker channel would.
type MemoryBus struct {
	mu      sync.RWMutex
	topics  map[string]struct{}
	handler Handler
	closed  bool
}

func NewMemory() *MemoryBus {
	return &MemoryBus{topics: make(map[string]struct{})}
}

// Start binds the delivery handler. Publishes before Start are dropped,
// the same as publishes with no subscriber.
func (b *MemoryBus) Start(handler Handler) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	_, subscribed := b.topics[topic]
	handler := b.handler
	closed := b.closed
	b.mu.RUnlock()

	if closed || !subscribed || handler == nil {
		return nil
	}
	metrics.BusPublished.Inc()
	metrics.BusReceived.Inc()
	handler(topic, payload)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.topics[t] = struct{}{}
	}
	return nil
}

func (b *MemoryBus) Unsubscribe(_ context.Context, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.topics, t)
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = make(map[string]struct{})
	return nil
}
