package eventsourcing

import (
	"fmt"
	"sort"
)

// Applier applies one event to a bound aggregate.
type Applier func(ev DomainEvent) error

// HydrateHandler applies events of a single type to an aggregate of type A.
type HydrateHandler[A any] struct {
	name  string
	apply func(agg A, ev DomainEvent) error
}

// EventName returns the event type the handler applies.
func (h HydrateHandler[A]) EventName() string { return h.name }

// On creates a HydrateHandler for events of type E, keyed by E's EventType.
//
// Example Usage:
//
//	var handlers = NewHandlers("Family",
//	    On(func(f *Family, e FamilyCreated, env DomainEvent) { f.name = e.Name }),
//	)
func On[A any, E Event](fn func(agg A, event E, env DomainEvent)) HydrateHandler[A] {
	var zero E
	name := zero.EventType()
	return HydrateHandler[A]{
		name: name,
		apply: func(agg A, env DomainEvent) error {
			event, ok := env.Payload.(E)
			if !ok {
				return &MissingApplyHandlerError{
					AggregateType: env.AggregateType,
					EventType:     name,
					Payload:       fmt.Sprintf("%T", env.Payload),
				}
			}
			fn(agg, event, env)
			return nil
		},
	}
}

// Handlers is the apply table of one aggregate type. Build it once, at package
// level, and Bind it to every new instance.
type Handlers[A any] struct {
	aggregateType string
	handlers      map[string]HydrateHandler[A]
}

// NewHandlers builds the apply table for an aggregate type.
//
// Panics if two handlers apply the same event type.
func NewHandlers[A any](aggregateType string, handlers ...HydrateHandler[A]) *Handlers[A] {
	m := make(map[string]HydrateHandler[A], len(handlers))
	for _, h := range handlers {
		if _, exists := m[h.name]; exists {
			panic(fmt.Errorf("aggregate %s: event %s: %w", aggregateType, h.name, ErrDuplicateHandler))
		}
		m[h.name] = h
	}
	return &Handlers[A]{aggregateType: aggregateType, handlers: m}
}

// Bind returns an Applier dispatching events to agg.
func (t *Handlers[A]) Bind(agg A) Applier {
	return func(ev DomainEvent) error {
		h, ok := t.handlers[ev.EventType()]
		if !ok {
			return &MissingApplyHandlerError{AggregateType: t.aggregateType, EventType: ev.EventType()}
		}
		return h.apply(agg, ev)
	}
}

// AggregateType returns the aggregate type the table was built for.
func (t *Handlers[A]) AggregateType() string { return t.aggregateType }

// EventTypes returns the event names the table applies, sorted.
func (t *Handlers[A]) EventTypes() []string {
	out := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Handles reports whether the table applies events named name.
func (t *Handlers[A]) Handles(name string) bool {
	_, ok := t.handlers[name]
	return ok
}
