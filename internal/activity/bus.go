package activity

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Signal kinds published by the bundled front ends.
const (
	SignalMouseMove = "mousemove"
	SignalKeyDown   = "keydown"
	SignalScroll    = "scroll"
	SignalClick     = "click"
)

type subscription struct {
	signals map[string]struct{}
	fn      func(signal string)
}

// Bus fans interaction signals out to subscribers.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]subscription

	// Stats
	published int64
	delivered int64
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[uuid.UUID]subscription),
	}
}

// Subscribe registers fn for the given signal kinds. The returned function
// removes the subscription and may be called more than once.
func (b *Bus) Subscribe(signals []string, fn func(signal string)) (cancel func()) {
	set := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		set[s] = struct{}{}
	}

	id := uuid.New()
	b.mu.Lock()
	b.subs[id] = subscription{signals: set, fn: fn}
	b.mu.Unlock()

	b.logger.Debug("activity subscription added", "id", id, "signals", signals)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			b.logger.Debug("activity subscription removed", "id", id)
		})
	}
}

// Notify delivers signal to every subscriber interested in it. Subscribers
// run on the caller's goroutine, outside the bus lock.
func (b *Bus) Notify(signal string) {
	b.mu.Lock()
	b.published++
	targets := make([]func(string), 0, len(b.subs))
	for _, sub := range b.subs {
		if _, ok := sub.signals[signal]; ok {
			targets = append(targets, sub.fn)
		}
	}
	b.delivered += int64(len(targets))
	b.mu.Unlock()

	for _, fn := range targets {
		fn(signal)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// BusStats contains bus statistics.
type BusStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Delivered   int64 `json:"delivered"`
}

// Stats returns bus statistics.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BusStats{
		Subscribers: len(b.subs),
		Published:   b.published,
		Delivered:   b.delivered,
	}
}
