package framework

import (
	"context"
	"sync"
)

// BusClient is the outbound event contract services depend on instead of
// importing a concrete notification transport. The transport itself (SMS,
// push, email) is out of scope for this module; PublishEvent only needs to
// reach whatever subscribers are registered in-process (typically the audit
// log and, in production, a notification dispatcher wired in from main).
type BusClient interface {
	PublishEvent(ctx context.Context, event string, payload any) error
}

// Subscriber receives events published on an EventBus.
type Subscriber func(ctx context.Context, event string, payload any)

// EventBus is an in-process, fan-out BusClient. Subscribers are invoked
// synchronously in registration order; a subscriber panic or error never
// fails the publish call, keeping emission best-effort like the rest of the
// notification path.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn to receive every future published event.
func (b *EventBus) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// PublishEvent fans the event out to all subscribers. It never returns an
// error from a subscriber; delivery is best-effort.
func (b *EventBus) PublishEvent(ctx context.Context, event string, payload any) error {
	if b == nil {
		return ErrBusUnavailable
	}
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		func() {
			defer func() { _ = recover() }()
			sub(ctx, event, payload)
		}()
	}
	return nil
}
