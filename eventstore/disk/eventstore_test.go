package disk_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/eventstore/disk"
	"github.com/familyorganizer/eventsourcing/fixtures"
)

func newStore(t *testing.T, dir string) *disk.FileStore {
	t.Helper()
	store, err := disk.NewFileStore(dir, fixtures.NewCodec())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndGetEvents(t *testing.T) {
	ctx := es.WithUser(t.Context(), "user-1")
	store := newStore(t, t.TempDir())

	events := fixtures.NewEvents("list-1").
		With(es.EventOptionsFromContext(ctx)...).
		Build(fixtures.ListCreated{Name: "groceries"}, fixtures.ItemAdded{Item: "milk", Qty: 2})

	res, err := store.Append(ctx, events, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.NextExpectedVersion)

	got, err := store.GetEvents(ctx, "list-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events[0].EventID, got[0].EventID)
	assert.Equal(t, fixtures.ItemAdded{Item: "milk", Qty: 2}, got[1].Payload)
	assert.Equal(t, "user-1", got[1].UserID)

	from, err := store.GetEvents(ctx, "list-1", 2)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, uint64(2), from[0].Version)

	none, err := store.GetEvents(ctx, "missing", 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	first := newStore(t, dir)
	_, err := fixtures.Seed(t.Context(), first, "list-1", fixtures.ListCreated{Name: "a"}, fixtures.ItemAdded{Item: "x", Qty: 1})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newStore(t, dir)
	_, err = second.Append(t.Context(), fixtures.NewEvents("list-1").Build(fixtures.ListCreated{}), 0)
	var conflict *es.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(2), conflict.ActualVersion)

	_, err = second.Append(t.Context(), fixtures.NewEvents("list-2").Build(fixtures.ListCreated{Name: "b"}), 0)
	require.NoError(t, err)

	created, err := second.GetEventsByType(t.Context(), "ListCreated", es.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, created, 2)
}

func TestAppend_GapIsRejected(t *testing.T) {
	store := newStore(t, t.TempDir())
	_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").From(1).Build(fixtures.ItemAdded{}), 1)
	require.ErrorIs(t, err, es.ErrInvalidEventBatch)
}

func TestAppend_UnregisteredPayloadStoresNothing(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t, dir)

	_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").Build(fixtures.ListCreated{}, unregistered{}), 0)
	require.ErrorIs(t, err, es.ErrUnknownEventType)

	_, statErr := os.Stat(filepath.Join(dir, "streams", "list-1"))
	assert.True(t, os.IsNotExist(statErr))
}

type unregistered struct{}

func (unregistered) EventType() string { return "Unregistered" }

func TestGetEventsByType(t *testing.T) {
	store := newStore(t, t.TempDir())
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"list-c", "list-a"} {
		_, err := store.Append(t.Context(), fixtures.NewEvents(id).
			With(es.WithTimestamp(base.Add(time.Duration(i)*time.Minute))).
			Build(fixtures.ListCreated{Name: id}), 0)
		require.NoError(t, err)
	}

	all, err := store.GetEventsByType(t.Context(), "ListCreated", es.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "list-c", all[0].AggregateID)

	late, err := store.GetEventsByType(t.Context(), "ListCreated", es.TimeWindow{From: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, "list-a", late[0].AggregateID)
}

func TestAggregateIDsAreEscaped(t *testing.T) {
	store := newStore(t, t.TempDir())
	for _, id := range []string{"..", "all", "a/b"} {
		_, err := fixtures.Seed(t.Context(), store, id, fixtures.ListCreated{Name: id})
		require.NoError(t, err, id)

		got, err := store.GetEvents(t.Context(), id, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].AggregateID)
	}
}

func TestAppend_SharedDirectoryConflicts(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	a := newStore(t, dir)
	b := newStore(t, dir)

	_, err := a.Append(ctx, fixtures.NewEvents("list-1").Build(fixtures.ListCreated{Name: "a"}), 0)
	require.NoError(t, err)

	_, err = b.Append(ctx, fixtures.NewEvents("list-1").Build(fixtures.ListCreated{Name: "b"}), 0)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	_, err = a.Append(ctx, fixtures.NewEvents("list-1").From(1).Build(fixtures.ItemAdded{Item: "from-a", Qty: 1}), 1)
	require.NoError(t, err)

	_, err = b.Append(ctx, fixtures.NewEvents("list-1").From(1).Build(fixtures.ItemAdded{Item: "from-b", Qty: 1}), 1)
	var conflict *es.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(2), conflict.ActualVersion)

	got, err := b.GetEvents(ctx, "list-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fixtures.ItemAdded{Item: "from-a", Qty: 1}, got[1].Payload)
}

func TestAppend_ConcurrentStoresOneWinner(t *testing.T) {
	dir := t.TempDir()
	stores := []*disk.FileStore{newStore(t, dir), newStore(t, dir)}
	const writers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(store *disk.FileStore) {
			defer wg.Done()
			_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").Build(
				fixtures.ListCreated{Name: "x"}, fixtures.ItemAdded{Item: "y", Qty: 1}), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, es.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Error(err)
			}
		}(stores[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, writers-1, conflicts)

	got, err := stores[0].GetEvents(t.Context(), "list-1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAppend_BatchIsOneFile(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t, dir)
	_, err := fixtures.Seed(t.Context(), store, "list-1",
		fixtures.ListCreated{}, fixtures.ItemAdded{}, fixtures.ItemAdded{})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "streams", "list-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")

	from, err := store.GetEvents(t.Context(), "list-1", 3)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, uint64(3), from[0].Version)
}

func TestAppend_UnpublishedBatchIsIgnored(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	store := newStore(t, dir)
	_, err := fixtures.Seed(ctx, store, "list-1", fixtures.ListCreated{Name: "chores"})
	require.NoError(t, err)

	// a writer that died before publishing leaves only its temp file
	stray := filepath.Join(dir, "streams", "list-1", "batch-123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`[{"version":2,"event_type":"ItemAdded"`), 0o644))

	got, err := store.GetEvents(ctx, "list-1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	created, err := store.GetEventsByType(ctx, "ListCreated", es.TimeWindow{})
	require.NoError(t, err)
	assert.Len(t, created, 1)

	res, err := store.Append(ctx, fixtures.NewEvents("list-1").From(1).Build(fixtures.ItemAdded{Item: "milk", Qty: 1}), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.NextExpectedVersion)
}

func TestClosed(t *testing.T) {
	store := newStore(t, t.TempDir())
	require.NoError(t, store.Close())

	_, err := store.GetEvents(t.Context(), "list-1", 1)
	require.ErrorIs(t, err, es.ErrEventStoreIsClosed)
	_, err = fixtures.Seed(t.Context(), store, "list-1", fixtures.ListCreated{})
	require.ErrorIs(t, err, es.ErrEventStoreIsClosed)
}
