package fixtures

import (
	"context"
	"fmt"

	es "github.com/familyorganizer/eventsourcing"
)

// ListCreated starts a List.
type ListCreated struct {
	Name string `json:"name"`
}

func (ListCreated) EventType() string { return "ListCreated" }

// ItemAdded adds an item to a List.
type ItemAdded struct {
	Item string `json:"item"`
	Qty  int    `json:"qty"`
}

func (ItemAdded) EventType() string { return "ItemAdded" }

// ItemRemoved removes an item from a List.
type ItemRemoved struct {
	Item string `json:"item"`
}

func (ItemRemoved) EventType() string { return "ItemRemoved" }

// Unhandled is registered but the List has no handler for it.
type Unhandled struct{}

func (Unhandled) EventType() string { return "Unhandled" }

// NewRegistry returns a registry knowing all fixture events.
func NewRegistry() *es.Registry {
	r := es.NewRegistry()
	es.RegisterEvent[ListCreated](r)
	es.RegisterEvent[ItemAdded](r)
	es.RegisterEvent[ItemRemoved](r)
	es.RegisterEvent[Unhandled](r)
	return r
}

// NewCodec returns a JSON codec over NewRegistry.
func NewCodec() *es.Codec {
	return es.NewCodec(NewRegistry())
}

// EventBuilder provides a fluent API for constructing versioned test events.
type EventBuilder struct {
	aggregateID string
	version     uint64
	opts        []es.EventOption
}

// NewEvents creates a builder for events of aggregateID starting at version 1.
func NewEvents(aggregateID string) *EventBuilder {
	return &EventBuilder{aggregateID: aggregateID}
}

// From continues numbering after version.
func (b *EventBuilder) From(version uint64) *EventBuilder {
	b.version = version
	return b
}

// With adds options applied to every built event.
func (b *EventBuilder) With(opts ...es.EventOption) *EventBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build wraps payloads in consecutively versioned DomainEvents.
func (b *EventBuilder) Build(payloads ...es.Event) []es.DomainEvent {
	out := make([]es.DomainEvent, len(payloads))
	for i, p := range payloads {
		b.version++
		out[i] = es.NewDomainEvent(b.aggregateID, ListType, p, b.opts...).WithVersion(b.version)
	}
	return out
}

// Seed appends payloads for aggregateID to store starting at version 1.
func Seed(ctx context.Context, store es.EventStore, aggregateID string, payloads ...es.Event) ([]es.DomainEvent, error) {
	events := NewEvents(aggregateID).Build(payloads...)
	if _, err := store.Append(ctx, events, 0); err != nil {
		return nil, fmt.Errorf("seed %q: %w", aggregateID, err)
	}
	return events, nil
}
