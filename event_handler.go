package eventsourcing

import (
	"context"
	"fmt"
	"sort"
)

// EventHandler handles committed events, typically to update a read model.
type EventHandler interface {
	// Handle processes the given event within the provided context.
	Handle(ctx context.Context, event DomainEvent) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function.
//
// There is no type-checking or filtering: the handler will receive all events
// that it is invoked with. If you need type safety, use OnEvent[T] instead.
func NewEventHandlerFunc(fn func(ctx context.Context, event DomainEvent) error) EventHandler {
	return eventHandlerFunc(fn)
}

// eventHandlerFunc is a function type that implements EventHandler.
type eventHandlerFunc func(ctx context.Context, event DomainEvent) error

func (h eventHandlerFunc) Handle(ctx context.Context, event DomainEvent) error {
	return h(ctx, event)
}

// typedEventHandler is a strongly typed event handler for a specific payload type T.
type typedEventHandler[T Event] func(ctx context.Context, ev T, env DomainEvent) error

// EventName returns the name of the event type T.
// It is used internally by EventGroupProcessor for routing.
func (h typedEventHandler[T]) EventName() string {
	var zero T
	return zero.EventType()
}

// Handle processes the event if its payload is a T.
// Returns ErrSkippedEvent if the event is of the wrong type.
func (h typedEventHandler[T]) Handle(ctx context.Context, event DomainEvent) error {
	ev, ok := event.Payload.(T)
	if !ok {
		return &ErrSkippedEvent{Event: event}
	}
	return h(ctx, ev, event)
}

// OnEvent creates a strongly-typed EventHandler for a specific payload type.
//
// Example Usage:
//
//	handler := OnEvent(func(ctx context.Context, ev FamilyCreated, env DomainEvent) error {
//	    index.addOwner(ev.OwnerID, env.AggregateID)
//	    return nil
//	})
//	group := NewEventGroupProcessor(handler)
func OnEvent[T Event](fn func(ctx context.Context, ev T, env DomainEvent) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventGroupProcessor is a collection of typed event handlers.
// It routes incoming events to the correct handler based on event type.
type EventGroupProcessor struct {
	handlers map[string]EventHandler // key = EventName()
}

// NewEventGroupProcessor creates a group of typed event handlers.
//
// Panics if a handler was not created with OnEvent or if two handlers are
// provided for the same event type.
func NewEventGroupProcessor(handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {

		u, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T does not have a function `EventName()`", h))
		}

		name := u.EventName()
		if _, exists := m[name]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", name, ErrDuplicateHandler))
		}
		m[name] = h
	}

	return &EventGroupProcessor{
		handlers: m,
	}
}

// Handle routes the given event to the correct typed handler.
// Returns ErrSkippedEvent if no handler exists for the event type.
func (p *EventGroupProcessor) Handle(ctx context.Context, ev DomainEvent) error {
	h, ok := p.handlers[ev.EventType()]
	if !ok {
		return &ErrSkippedEvent{Event: ev}
	}
	return h.Handle(ctx, ev)
}

// StreamFilter returns a sorted list of all event names handled by this group.
// Useful for backfilling from GetEventsByType.
func (p *EventGroupProcessor) StreamFilter() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out) // deterministic order
	return out
}
