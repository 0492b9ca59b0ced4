package bus

import (
	"context"
	"sync"
)

// Event is one realtime notification. Channel follows the
// company-<id>-<topic> convention consumed by the web clients.
type Event struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// MemoryBus keeps published events in memory. Used when no redis is
// configured and in tests.
type MemoryBus struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *MemoryBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *MemoryBus) Close() error { return nil }
