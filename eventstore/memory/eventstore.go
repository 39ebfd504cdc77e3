package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*MemoryStore)(nil)

// MemoryStore keeps encoded records in process memory. Events go through the
// codec on the way in and out, so readers never share payload values with
// writers and unregistered types fail exactly as with a durable store.
type MemoryStore struct {
	codec  *eventsourcing.Codec
	mu     sync.RWMutex
	closed bool
	// events holds the records of each aggregate at index version-1.
	events map[string][]eventsourcing.Record
	// byType indexes the records of each event type in append order.
	byType map[string][]eventsourcing.Record
}

// NewMemoryStore returns an empty store decoding with codec.
func NewMemoryStore(codec *eventsourcing.Codec) *MemoryStore {
	return &MemoryStore{
		codec:  codec,
		events: make(map[string][]eventsourcing.Record),
		byType: make(map[string][]eventsourcing.Record),
	}
}

func (m *MemoryStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	if err := eventsourcing.ValidateBatch(events, expectedVersion); err != nil {
		return eventsourcing.AppendResult{}, err
	}
	records, err := m.codec.EncodeAll(events)
	if err != nil {
		return eventsourcing.AppendResult{}, err
	}
	aggregateID := events[0].AggregateID

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", eventsourcing.ErrEventStoreIsClosed)
	}

	stream := m.events[aggregateID]
	head := uint64(len(stream))

	// the slot of the first version is taken: another writer got there first.
	if head > expectedVersion {
		return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   head,
		}
	}
	if head < expectedVersion {
		return eventsourcing.AppendResult{}, fmt.Errorf(
			"append to %q: %w: stream is at version %d, expected %d",
			aggregateID, eventsourcing.ErrInvalidEventBatch, head, expectedVersion,
		)
	}

	if err := ctx.Err(); err != nil {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	m.events[aggregateID] = append(stream, records...)
	for _, rec := range records {
		m.byType[rec.EventType] = append(m.byType[rec.EventType], rec)
	}

	return eventsourcing.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: head + uint64(len(records)),
	}, nil
}

func (m *MemoryStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, eventsourcing.WrapStorageError("get events", err)
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, eventsourcing.WrapStorageError("get events", eventsourcing.ErrEventStoreIsClosed)
	}
	stream := m.events[aggregateID]
	start := uint64(0)
	if fromVersion > 1 {
		start = fromVersion - 1
	}
	var records []eventsourcing.Record
	if start < uint64(len(stream)) {
		records = append(records, stream[start:]...)
	}
	m.mu.RUnlock()

	events, err := m.codec.DecodeAll(records)
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByVersion(events)
	return events, nil
}

func (m *MemoryStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, eventsourcing.WrapStorageError("get events by type", err)
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, eventsourcing.WrapStorageError("get events by type", eventsourcing.ErrEventStoreIsClosed)
	}
	var records []eventsourcing.Record
	for _, rec := range m.byType[eventType] {
		if window.Contains(rec.Timestamp) {
			records = append(records, rec)
		}
	}
	m.mu.RUnlock()

	events, err := m.codec.DecodeAll(records)
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByTimestamp(events)
	return events, nil
}

// Records returns a copy of the stored records of one aggregate.
func (m *MemoryStore) Records(aggregateID string) []eventsourcing.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]eventsourcing.Record(nil), m.events[aggregateID]...)
}

// Import stores records as they are, bypassing the codec. It is meant for
// seeding and migrations; version slots are still enforced.
func (m *MemoryStore) Import(records ...eventsourcing.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
		stream := m.events[rec.AggregateID]
		if rec.Version != uint64(len(stream))+1 {
			return &eventsourcing.ConcurrencyConflictError{
				AggregateID:     rec.AggregateID,
				ExpectedVersion: rec.Version - 1,
				ActualVersion:   uint64(len(stream)),
			}
		}
		m.events[rec.AggregateID] = append(stream, rec)
		m.byType[rec.EventType] = append(m.byType[rec.EventType], rec)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = make(map[string][]eventsourcing.Record)
	m.byType = make(map[string][]eventsourcing.Record)
	return nil
}
