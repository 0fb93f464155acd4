package bus

import (
	"context"
	"sync"
)

// Local fans events out to in-process forwarders. It stands in for redis when no address
// is configured, so a single serve process still sees its own runs.
type Local struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
	closed bool
}

func NewLocal() *Local {
	return &Local{subs: map[int]func(Event){}}
}

func (b *Local) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// StartForwarder registers onEvent until ctx is done or the bus is closed.
func (b *Local) StartForwarder(ctx context.Context, onEvent func(ev Event)) error {
	if onEvent == nil {
		return errNoCallback
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = onEvent
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(Event){}
	return nil
}

// Forwarders is the number of registered callbacks.
func (b *Local) Forwarders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
