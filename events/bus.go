package events

import (
	"context"
	"sync"
)

// Publisher is the single publish capability the engine is constructed with.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// SubscribeFunc receives published events. Delivery on the Bus is
// synchronous: subscribers run on the publisher's goroutine, in
// registration order for the same binding.
type SubscribeFunc func(ctx context.Context, evt Event)

// Bus is the in-process adapter: a synchronous fan-out to local subscribers,
// used by server-side reconciliation listeners.
type Bus struct {
	mu       sync.RWMutex
	generic  []SubscribeFunc
	bySignal map[string][]SubscribeFunc
}

// NewBus returns an empty in-process bus.
func NewBus() *Bus {
	return &Bus{
		bySignal: make(map[string][]SubscribeFunc),
	}
}

// Subscribe registers a listener for the generic status-changed feed.
func (b *Bus) Subscribe(fn SubscribeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generic = append(b.generic, fn)
}

// On registers a listener for one named signal (hidden, shown, deleted,
// pending, approved, rejected), sugar over the generic feed.
func (b *Bus) On(signal string, fn SubscribeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySignal[signal] = append(b.bySignal[signal], fn)
}

// Publish delivers the event to generic subscribers, then to subscribers of
// its status-specific signal. Never fails; subscribers that need failure
// semantics belong behind a different Publisher adapter.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	generic := make([]SubscribeFunc, len(b.generic))
	copy(generic, b.generic)
	named := make([]SubscribeFunc, len(b.bySignal[evt.Signal()]))
	copy(named, b.bySignal[evt.Signal()])
	b.mu.RUnlock()

	for _, fn := range generic {
		fn(ctx, evt)
	}
	for _, fn := range named {
		fn(ctx, evt)
	}
	return nil
}

// MultiPublisher fans one publish out to several adapters, e.g. the
// in-process bus plus a Postgres notifier. Errors from later adapters do
// not stop earlier ones; the first error is returned.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, evt Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
