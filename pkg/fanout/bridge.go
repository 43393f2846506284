package fanout

import (
	"context"
	"sync"
)

// Bridge is the shared publish/subscribe channel that carries broadcasts
// across every process in the deployment. Each hub publishes its
// broadcasts to the bridge and re-emits received envelopes to its own
// local connections.
type Bridge interface {
	// Publish sends an envelope to every subscribed process,
	// including the publisher itself.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers a handler for incoming envelopes and blocks
	// until ctx is cancelled. Handlers must not block.
	Subscribe(ctx context.Context, handler func(Envelope)) error

	// Close releases bridge resources.
	Close() error
}

// MemoryBridge loops published envelopes back to local subscribers. It
// serves single-process deployments and tests; multi-process deployments
// use the redis bridge.
type MemoryBridge struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
	closed   bool
}

// NewMemoryBridge creates an in-process loopback bridge.
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{}
}

func (b *MemoryBridge) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBridgeUnavailable
	}
	for _, handler := range b.handlers {
		handler(env)
	}
	return nil
}

func (b *MemoryBridge) Subscribe(ctx context.Context, handler func(Envelope)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeUnavailable
	}
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (b *MemoryBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
