package fixtures

import (
	"context"
	"slices"
	"sync"

	es "github.com/familyorganizer/eventsourcing"
)

// StoreSpy is a configurable mock EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
// Unlike the real stores it returns events in the order they were given to
// WithEvents, so callers can check that they sort what they read.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn          func(ctx context.Context, events []es.DomainEvent, expectedVersion uint64) (es.AppendResult, error)
	GetEventsFn       func(ctx context.Context, aggregateID string, fromVersion uint64) ([]es.DomainEvent, error)
	GetEventsByTypeFn func(ctx context.Context, eventType string, window es.TimeWindow) ([]es.DomainEvent, error)
	CloseFn           func() error

	// Call tracking
	AppendCalls          int
	GetEventsCalls       int
	GetEventsByTypeCalls int
	CloseCalls           int

	// Captured arguments from last call
	LastAppendEvents    []es.DomainEvent
	LastExpectedVersion uint64
	LastGetEventsID     string
	LastFromVersion     uint64

	events map[string][]es.DomainEvent

	loadErr   error
	appendErr error
}

var _ es.EventStore = (*StoreSpy)(nil)

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{events: make(map[string][]es.DomainEvent)}
}

// WithEvents pre-populates the store, keeping the given order.
func (s *StoreSpy) WithEvents(aggregateID string, events ...es.DomainEvent) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[aggregateID] = append(s.events[aggregateID], events...)
	return s
}

// FailOnLoad configures the store to return an error on reads.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on appends.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// Stored returns what the spy holds for aggregateID.
func (s *StoreSpy) Stored(aggregateID string) []es.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events[aggregateID])
}

// Append implements EventStore.Append. Without overrides it enforces the
// expected version against the number of stored events.
func (s *StoreSpy) Append(ctx context.Context, events []es.DomainEvent, expectedVersion uint64) (es.AppendResult, error) {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppendEvents = slices.Clone(events)
	s.LastExpectedVersion = expectedVersion
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, events, expectedVersion)
	}
	if s.appendErr != nil {
		return es.AppendResult{}, s.appendErr
	}
	return s.store(events, expectedVersion)
}

func (s *StoreSpy) store(events []es.DomainEvent, expectedVersion uint64) (es.AppendResult, error) {
	if err := es.ValidateBatch(events, expectedVersion); err != nil {
		return es.AppendResult{}, err
	}

	id := events[0].AggregateID

	s.mu.Lock()
	defer s.mu.Unlock()
	head := uint64(len(s.events[id]))
	if head != expectedVersion {
		return es.AppendResult{}, &es.ConcurrencyConflictError{
			AggregateID:     id,
			ExpectedVersion: expectedVersion,
			ActualVersion:   head,
		}
	}
	s.events[id] = append(s.events[id], events...)
	return es.AppendResult{AggregateID: id, NextExpectedVersion: head + uint64(len(events))}, nil
}

// GetEvents implements EventReader.GetEvents.
func (s *StoreSpy) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]es.DomainEvent, error) {
	s.mu.Lock()
	s.GetEventsCalls++
	s.LastGetEventsID = aggregateID
	s.LastFromVersion = fromVersion
	s.mu.Unlock()

	if s.GetEventsFn != nil {
		return s.GetEventsFn(ctx, aggregateID, fromVersion)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []es.DomainEvent
	for _, ev := range s.events[aggregateID] {
		if ev.Version >= fromVersion {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetEventsByType implements EventReader.GetEventsByType.
func (s *StoreSpy) GetEventsByType(ctx context.Context, eventType string, window es.TimeWindow) ([]es.DomainEvent, error) {
	s.mu.Lock()
	s.GetEventsByTypeCalls++
	s.mu.Unlock()

	if s.GetEventsByTypeFn != nil {
		return s.GetEventsByTypeFn(ctx, eventType, window)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []es.DomainEvent
	for _, stream := range s.events {
		for _, ev := range stream {
			if ev.EventType() == eventType && window.Contains(ev.Timestamp) {
				out = append(out, ev)
			}
		}
	}
	es.SortByTimestamp(out)
	return out, nil
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()

	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

// Reset clears all call counts and stored data.
func (s *StoreSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AppendCalls = 0
	s.GetEventsCalls = 0
	s.GetEventsByTypeCalls = 0
	s.CloseCalls = 0
	s.LastAppendEvents = nil
	s.LastExpectedVersion = 0
	s.LastGetEventsID = ""
	s.LastFromVersion = 0
	s.events = make(map[string][]es.DomainEvent)
	s.loadErr = nil
	s.appendErr = nil
}

// Pre-built store scenarios.

// FailingStore returns a StoreSpy that fails on all operations.
func FailingStore(err error) *StoreSpy {
	return NewStoreSpy().FailOnLoad(err).FailOnAppend(err)
}

// ConcurrencyConflictStore returns a StoreSpy that reports a conflict on
// every append, as if another writer were always one step ahead.
func ConcurrencyConflictStore(actual uint64) *StoreSpy {
	store := NewStoreSpy()
	store.AppendFn = func(ctx context.Context, events []es.DomainEvent, expectedVersion uint64) (es.AppendResult, error) {
		return es.AppendResult{}, &es.ConcurrencyConflictError{
			AggregateID:     events[0].AggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}
	return store
}

// ConflictFirst returns a StoreSpy whose first n appends conflict and whose
// later appends behave normally.
func ConflictFirst(n int) *StoreSpy {
	store := NewStoreSpy()
	remaining := n
	store.AppendFn = func(ctx context.Context, events []es.DomainEvent, expectedVersion uint64) (es.AppendResult, error) {
		store.mu.Lock()
		conflict := remaining > 0
		if conflict {
			remaining--
		}
		store.mu.Unlock()
		if conflict {
			return es.AppendResult{}, &es.ConcurrencyConflictError{
				AggregateID:     events[0].AggregateID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   expectedVersion + 1,
			}
		}
		return store.store(events, expectedVersion)
	}
	return store
}
