package eventsourcing

import (
	"context"
	"fmt"
	"time"
)

// Aggregate is the interface that all aggregates must implement.
type Aggregate interface {

	// AggregateID returns the unique identifier of the aggregate.
	AggregateID() string

	// AggregateType returns the type name stored with every event.
	AggregateType() string

	// Version returns the version of the last applied event, 0 for a new aggregate.
	Version() uint64

	// UncommittedEvents returns the raised events that are not persisted yet.
	UncommittedEvents() []DomainEvent

	// MarkEventsAsCommitted clears the uncommitted events after a successful save.
	MarkEventsAsCommitted()

	// LoadFromHistory applies persisted events, in version order.
	LoadFromHistory(events []DomainEvent) error

	// ReplayEvents resets the aggregate and applies events from scratch.
	ReplayEvents(events []DomainEvent) error
}

// AggregateRoot is embedded by concrete aggregates. It tracks the version,
// the uncommitted events and dispatches events to the bound apply table.
//
// Lifecycle: empty (version 0) → hydrated (LoadFromHistory) → dirty (RaiseEvent)
// → committed (MarkEventsAsCommitted).
type AggregateRoot struct {
	id            string
	aggregateType string
	version       uint64
	createdAt     time.Time
	updatedAt     time.Time
	uncommitted   []DomainEvent
	apply         Applier
	reset         func()
}

// NewAggregateRoot creates the embedded root of an aggregate. reset restores
// the derived state of the outer aggregate to its construction-time value and
// may be nil for aggregates without derived state.
func NewAggregateRoot(id, aggregateType string, apply Applier, reset func()) AggregateRoot {
	return AggregateRoot{
		id:            id,
		aggregateType: aggregateType,
		apply:         apply,
		reset:         reset,
	}
}

func (a *AggregateRoot) AggregateID() string   { return a.id }
func (a *AggregateRoot) AggregateType() string { return a.aggregateType }
func (a *AggregateRoot) Version() uint64       { return a.version }
func (a *AggregateRoot) CreatedAt() time.Time  { return a.createdAt }
func (a *AggregateRoot) UpdatedAt() time.Time  { return a.updatedAt }

// UncommittedEvents returns a copy of the events raised since the last commit.
func (a *AggregateRoot) UncommittedEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

// IsDirty reports whether there are uncommitted events.
func (a *AggregateRoot) IsDirty() bool { return len(a.uncommitted) > 0 }

func (a *AggregateRoot) MarkEventsAsCommitted() {
	a.uncommitted = nil
}

// ApplyEvent dispatches ev to the apply table and advances the version. New
// events are also recorded as uncommitted.
func (a *AggregateRoot) ApplyEvent(ev DomainEvent, isNew bool) error {
	if a.apply == nil {
		return fmt.Errorf("aggregate %s %q: %w", a.aggregateType, a.id, ErrAggregateUnbound)
	}
	if a.id == "" {
		a.id = ev.AggregateID
	}
	if ev.AggregateID != a.id {
		return fmt.Errorf("apply %s to %s %q: %w", ev, a.aggregateType, a.id, ErrAggregateMismatch)
	}
	if ev.Version != a.version+1 {
		return fmt.Errorf("apply %s to %s %q at version %d: %w", ev, a.aggregateType, a.id, a.version, ErrVersionOutOfOrder)
	}

	if err := a.apply(ev); err != nil {
		return err
	}

	a.version = ev.Version
	a.updatedAt = ev.Timestamp
	if a.createdAt.IsZero() {
		a.createdAt = ev.Timestamp
	}
	if isNew {
		a.uncommitted = append(a.uncommitted, ev)
	}
	return nil
}

// RaiseEvent stamps a copy of ev with the next version and applies it as new.
// The aggregate is the only authority on versions; the version ev carries is
// ignored.
func (a *AggregateRoot) RaiseEvent(ev DomainEvent) error {
	return a.ApplyEvent(ev.WithVersion(a.version+1), true)
}

// Raise builds a DomainEvent for payload, with provenance taken from ctx,
// and raises it.
func (a *AggregateRoot) Raise(ctx context.Context, payload Event, opts ...EventOption) error {
	opts = append(EventOptionsFromContext(ctx), opts...)
	return a.RaiseEvent(NewDomainEvent(a.id, a.aggregateType, payload, opts...))
}

// LoadFromHistory applies persisted events in the given order. The caller
// sorts them by version.
func (a *AggregateRoot) LoadFromHistory(events []DomainEvent) error {
	for _, ev := range events {
		if err := a.ApplyEvent(ev, false); err != nil {
			return err
		}
	}
	return nil
}

// ReplayEvents resets the aggregate to its empty state and rebuilds it from
// events.
func (a *AggregateRoot) ReplayEvents(events []DomainEvent) error {
	a.version = 0
	a.uncommitted = nil
	a.createdAt = time.Time{}
	a.updatedAt = time.Time{}
	if a.reset != nil {
		a.reset()
	}
	return a.LoadFromHistory(events)
}

// restoreVersion positions the root after a snapshot restore.
func (a *AggregateRoot) restoreVersion(version uint64, createdAt, updatedAt time.Time) {
	a.version = version
	a.uncommitted = nil
	a.createdAt = createdAt
	a.updatedAt = updatedAt
}

// Snapshotter is implemented by aggregates that can be snapshotted.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	RestoreSnapshot(data []byte) error
}

type versionRestorer interface {
	restoreVersion(version uint64, createdAt, updatedAt time.Time)
}
