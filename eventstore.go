package eventsourcing

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// EventReader is the read side of an EventStore.
type EventReader interface {
	// GetEvents returns the events of one aggregate with Version >= fromVersion,
	// ascending by version. An aggregate without events yields an empty slice.
	GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]DomainEvent, error)

	// GetEventsByType returns the events of one type across all aggregates,
	// ordered by timestamp, optionally bounded by window.
	//
	// Unless the backend indexes event types this is a full scan; use it for
	// backfills, not per-request lookups.
	GetEventsByType(ctx context.Context, eventType string, window TimeWindow) ([]DomainEvent, error)
}

// EventStore defines the contract for an append-only event store.
//
// Implementations must guarantee:
//   - At most one event per (aggregate id, version). A write that collides with
//     a stored version fails with *ConcurrencyConflictError.
//   - Append is atomic: all events of a batch become visible, or none.
//   - Reads for one aggregate are ordered by version regardless of the
//     physical order of the backend.
type EventStore interface {
	EventReader

	// Append stores the events of one aggregate. expectedVersion is the version
	// the aggregate had when it was loaded; the events must carry versions
	// expectedVersion+1 … expectedVersion+len(events).
	//
	// Errors:
	//   - *ConcurrencyConflictError if another writer stored one of the versions.
	//   - ErrInvalidEventBatch if the batch is malformed.
	//   - *UnknownEventTypeError if a payload type is not registered.
	//   - *StorageError for failures of the backend.
	Append(ctx context.Context, events []DomainEvent, expectedVersion uint64) (AppendResult, error)

	// Close releases any resources held by the EventStore, such as network
	// connections or file handles. After Close is called, the EventStore should
	// not be used.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	AggregateID         string
	NextExpectedVersion uint64
}

// ValidateBatch checks that events form one contiguous batch for a single
// aggregate starting right after expectedVersion.
func ValidateBatch(events []DomainEvent, expectedVersion uint64) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: no events", ErrInvalidEventBatch)
	}

	aggregateID := events[0].AggregateID
	if aggregateID == "" {
		return fmt.Errorf("%w: event 0 has no aggregate id", ErrInvalidEventBatch)
	}

	for i, ev := range events {
		if ev.AggregateID != aggregateID {
			return fmt.Errorf("%w: event %d has different aggregate id %q", ErrInvalidEventBatch, i, ev.AggregateID)
		}
		if want := expectedVersion + uint64(i) + 1; ev.Version != want {
			return fmt.Errorf("%w: event %d of %q has version %d, want %d", ErrInvalidEventBatch, i, aggregateID, ev.Version, want)
		}
		if ev.Payload == nil {
			return fmt.Errorf("%w: event %d of %q has no payload", ErrInvalidEventBatch, i, aggregateID)
		}
	}
	return nil
}

// SortByVersion orders the events of one aggregate ascending by version.
func SortByVersion(events []DomainEvent) {
	slices.SortStableFunc(events, func(a, b DomainEvent) int {
		return cmp.Compare(a.Version, b.Version)
	})
}

// SortByTimestamp orders events across aggregates by timestamp, then by
// aggregate id and version.
func SortByTimestamp(events []DomainEvent) {
	slices.SortStableFunc(events, func(a, b DomainEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.AggregateID, b.AggregateID); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
}
