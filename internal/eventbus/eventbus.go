// Package eventbus provides a process-wide, synchronous publish mechanism
// for bar.DomainEvent. Handlers are registered per event kind and invoked in
// registration order; a failing handler is logged and does not prevent the
// remaining handlers in the chain from running.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/logging"
)

// Handler reacts to a published event. A returned error is logged by the
// bus; it does not stop other handlers for the same event from running and
// does not propagate to the publisher.
type Handler func(bar.DomainEvent) error

// Bus dispatches domain events to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[bar.EventKind][]Handler
	logger   *slog.Logger
}

// New constructs a Bus. A nil logger falls back to logging.Discard().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{
		handlers: make(map[bar.EventKind][]Handler),
		logger:   logger.With("component", "eventbus"),
	}
}

// Subscribe appends handler to the chain for kind. Handlers for a given kind
// run in the order they were subscribed.
func (b *Bus) Subscribe(kind bar.EventKind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish runs every handler registered for event.Kind, synchronously, in
// registration order. A handler that returns an error or panics is isolated:
// the failure is logged and the next handler still runs.
func (b *Bus) Publish(event bar.DomainEvent) {
	b.mu.RLock()
	chain := append([]Handler(nil), b.handlers[event.Kind]...)
	b.mu.RUnlock()

	for i, h := range chain {
		b.invoke(i, event, h)
	}
}

// PublishAll publishes a batch in order, as produced by an aggregate's
// PendingEvents.
func (b *Bus) PublishAll(events []bar.DomainEvent) {
	for _, e := range events {
		b.Publish(e)
	}
}

func (b *Bus) invoke(index int, event bar.DomainEvent, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_kind", event.Kind, "event_id", event.ID, "handler_index", index, "panic", r)
		}
	}()
	if err := h(event); err != nil {
		b.logger.Error("event handler failed",
			"event_kind", event.Kind, "event_id", event.ID, "handler_index", index, "error", err)
	}
}
