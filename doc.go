// Package eventsourcing is the event-sourcing core of the family organizer.
//
// Aggregates embed AggregateRoot and derive their state from DomainEvents
// applied through a Handlers table. An EventSourcedRepository loads them by
// replaying the events of an EventStore and saves new events with optimistic
// concurrency: the store accepts one event per (aggregate id, version) and
// rejects the loser of a race with a *ConcurrencyConflictError.
//
// Event payloads are stored under the name returned by EventType and must be
// registered with a Registry before they can be decoded:
//
//	registry := eventsourcing.NewRegistry()
//	eventsourcing.RegisterEvent[FamilyCreated](registry)
//	store := memory.NewMemoryStore(eventsourcing.NewCodec(registry))
//	repo := eventsourcing.NewRepository(store, NewFamily)
package eventsourcing

// InstrumentationVersion is reported by the otel instrumentation.
const InstrumentationVersion = "0.4.0"
