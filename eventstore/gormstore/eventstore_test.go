package gormstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/eventstore/gormstore"
	"github.com/familyorganizer/eventsourcing/fixtures"
)

func newStore(t *testing.T) *gormstore.EventStore {
	t.Helper()
	db, err := gormstore.Open("sqlite", ":memory:")
	require.NoError(t, err)

	store := gormstore.New(db, fixtures.NewCodec())
	require.NoError(t, store.Migrate(t.Context()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndGetEvents(t *testing.T) {
	store := newStore(t)
	ctx := es.WithUser(t.Context(), "user-1")

	events := fixtures.NewEvents("list-1").
		With(es.EventOptionsFromContext(ctx)...).
		With(es.WithMetadata(map[string]any{"source": "test"})).
		Build(fixtures.ListCreated{Name: "groceries"}, fixtures.ItemAdded{Item: "milk", Qty: 2})

	res, err := store.Append(ctx, events, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.NextExpectedVersion)
	assert.Equal(t, "list-1", res.AggregateID)

	got, err := store.GetEvents(ctx, "list-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range events {
		assert.Equal(t, events[i].EventID, got[i].EventID)
		assert.Equal(t, events[i].Version, got[i].Version)
		assert.Equal(t, events[i].Payload, got[i].Payload)
		assert.Equal(t, "user-1", got[i].UserID)
		assert.Equal(t, events[i].CorrelationID, got[i].CorrelationID)
		assert.Equal(t, events[i].CausationID, got[i].CausationID)
		assert.True(t, events[i].Timestamp.Equal(got[i].Timestamp), "timestamp %v != %v", events[i].Timestamp, got[i].Timestamp)
		assert.Equal(t, "test", got[i].Metadata["source"])
	}
}

func TestGetEvents_FromVersionIsInclusive(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	_, err := fixtures.Seed(ctx, store, "list-1",
		fixtures.ListCreated{Name: "a"},
		fixtures.ItemAdded{Item: "x", Qty: 1},
		fixtures.ItemAdded{Item: "y", Qty: 1},
	)
	require.NoError(t, err)

	got, err := store.GetEvents(ctx, "list-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Version)
	assert.Equal(t, uint64(3), got[1].Version)

	none, err := store.GetEvents(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppend_StaleVersionConflicts(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	_, err := fixtures.Seed(ctx, store, "list-1", fixtures.ListCreated{Name: "a"})
	require.NoError(t, err)

	again := fixtures.NewEvents("list-1").Build(fixtures.ItemAdded{Item: "x", Qty: 1})
	_, err = store.Append(ctx, again, 0)

	var conflict *es.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "list-1", conflict.AggregateID)
	assert.Equal(t, uint64(0), conflict.ExpectedVersion)
	assert.Equal(t, uint64(1), conflict.ActualVersion)
	assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
}

func TestAppend_BatchIsAtomic(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	_, err := fixtures.Seed(ctx, store, "list-1", fixtures.ListCreated{Name: "a"})
	require.NoError(t, err)

	batch := fixtures.NewEvents("list-1").Build(
		fixtures.ListCreated{Name: "b"},
		fixtures.ItemAdded{Item: "x", Qty: 1},
		fixtures.ItemAdded{Item: "y", Qty: 1},
	)
	_, err = store.Append(ctx, batch, 0)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	got, err := store.GetEvents(ctx, "list-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixtures.ListCreated{Name: "a"}, got[0].Payload)
}

func TestUniqueIndexRejectsDuplicateVersion(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	row := gormstore.EventRow{
		ID:            uuid.NewString(),
		AggregateID:   "list-1",
		AggregateType: fixtures.ListType,
		EventType:     "ListCreated",
		EventData:     `{"name":"a"}`,
		Metadata:      "{}",
		Version:       1,
		Timestamp:     time.Now().UTC(),
	}
	require.NoError(t, store.DB().WithContext(ctx).Create(&row).Error)

	dup := row
	dup.ID = uuid.NewString()
	err := store.DB().WithContext(ctx).Create(&dup).Error
	require.Error(t, err)
}

func TestAppend_GapIsRejected(t *testing.T) {
	store := newStore(t)

	events := fixtures.NewEvents("list-1").From(3).Build(fixtures.ItemAdded{Item: "x", Qty: 1})
	_, err := store.Append(t.Context(), events, 3)
	require.ErrorIs(t, err, es.ErrInvalidEventBatch)
	assert.False(t, errors.Is(err, es.ErrConcurrencyConflict))
}

func TestAppend_UnregisteredPayload(t *testing.T) {
	store := newStore(t)

	ev := es.NewDomainEvent("list-1", fixtures.ListType, unregistered{}).WithVersion(1)
	_, err := store.Append(t.Context(), []es.DomainEvent{ev}, 0)
	require.ErrorIs(t, err, es.ErrUnknownEventType)
}

type unregistered struct{}

func (unregistered) EventType() string { return "Unregistered" }

func TestGetEventsByType(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"list-c", "list-a", "list-b"} {
		ev := fixtures.NewEvents(id).
			With(es.WithTimestamp(base.Add(time.Duration(i)*time.Hour))).
			Build(fixtures.ListCreated{Name: id}, fixtures.ItemAdded{Item: "x", Qty: 1})
		_, err := store.Append(ctx, ev, 0)
		require.NoError(t, err)
	}

	all, err := store.GetEventsByType(ctx, "ListCreated", es.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "list-c", all[0].AggregateID)
	assert.Equal(t, "list-a", all[1].AggregateID)
	assert.Equal(t, "list-b", all[2].AggregateID)

	window, err := store.GetEventsByType(ctx, "ListCreated", es.TimeWindow{
		From: base.Add(30 * time.Minute),
		To:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "list-a", window[0].AggregateID)
}

func TestSnapshots(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	_, err := store.LoadSnapshot(ctx, "list-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.SaveSnapshot(ctx, es.Snapshot{
		AggregateID: "list-1", AggregateType: fixtures.ListType, Version: 5,
		Data: []byte(`{"name":"five"}`), Timestamp: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.SaveSnapshot(ctx, es.Snapshot{
		AggregateID: "list-1", AggregateType: fixtures.ListType, Version: 3,
		Data: []byte(`{"name":"three"}`), Timestamp: now,
	}))

	snap, err := store.LoadSnapshot(ctx, "list-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Version)
	assert.JSONEq(t, `{"name":"five"}`, string(snap.Data))
	assert.True(t, now.Equal(snap.CreatedAt))

	require.NoError(t, store.SaveSnapshot(ctx, es.Snapshot{
		AggregateID: "list-1", AggregateType: fixtures.ListType, Version: 8,
		Data: []byte(`{"name":"eight"}`), Timestamp: now,
	}))
	snap, err = store.LoadSnapshot(ctx, "list-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), snap.Version)
}
