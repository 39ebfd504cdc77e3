package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/fixtures"
)

func newStore() *MemoryStore {
	return NewMemoryStore(fixtures.NewCodec())
}

func TestAppend_EmptySlice(t *testing.T) {
	_, err := newStore().Append(t.Context(), nil, 0)
	if !errors.Is(err, eventsourcing.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
}

func TestAppend_MultipleEvents(t *testing.T) {
	store := newStore()
	events := fixtures.NewEvents("list-1").Build(
		fixtures.ListCreated{Name: "chores"},
		fixtures.ItemAdded{Item: "milk", Qty: 1},
	)

	res, err := store.Append(t.Context(), events, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NextExpectedVersion != 2 || res.AggregateID != "list-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	got, err := store.GetEvents(t.Context(), "list-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Payload != (fixtures.ItemAdded{Item: "milk", Qty: 1}) {
		t.Fatalf("unexpected payload %#v", got[1].Payload)
	}
}

func TestAppend_MultibyteAggregateID(t *testing.T) {
	store := newStore()
	id := strings.Repeat("ж", 60)
	if _, err := fixtures.Seed(t.Context(), store, id, fixtures.ListCreated{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(store.Records(id)); n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
}

func TestAppend_Conflict(t *testing.T) {
	store := newStore()
	if _, err := fixtures.Seed(t.Context(), store, "list-1", fixtures.ListCreated{}); err != nil {
		t.Fatal(err)
	}

	_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").Build(fixtures.ListCreated{}), 0)
	var conflict *eventsourcing.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if conflict.ExpectedVersion != 0 || conflict.ActualVersion != 1 {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
}

func TestAppend_GapRejected(t *testing.T) {
	store := newStore()
	_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").From(3).Build(fixtures.ItemAdded{}), 3)
	if !errors.Is(err, eventsourcing.ErrInvalidEventBatch) {
		t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
	}
}

func TestAppend_Atomic(t *testing.T) {
	store := newStore()
	events := fixtures.NewEvents("list-1").Build(
		fixtures.ListCreated{},
		unregistered{},
	)

	_, err := store.Append(t.Context(), events, 0)
	if !errors.Is(err, eventsourcing.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
	if n := len(store.Records("list-1")); n != 0 {
		t.Fatalf("expected nothing stored, got %d records", n)
	}
}

type unregistered struct{}

func (unregistered) EventType() string { return "Unregistered" }

func TestGetEvents_FromVersion(t *testing.T) {
	store := newStore()
	if _, err := fixtures.Seed(t.Context(), store, "list-1",
		fixtures.ListCreated{}, fixtures.ItemAdded{}, fixtures.ItemAdded{}); err != nil {
		t.Fatal(err)
	}

	for from, want := range map[uint64]int{0: 3, 1: 3, 2: 2, 3: 1, 4: 0, 100: 0} {
		got, err := store.GetEvents(t.Context(), "list-1", from)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != want {
			t.Errorf("from %d: expected %d events, got %d", from, want, len(got))
		}
		if len(got) > 0 && from > 0 && got[0].Version != from {
			t.Errorf("from %d: first version %d", from, got[0].Version)
		}
	}

	got, err := store.GetEvents(t.Context(), "missing", 1)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}

func TestGetEvents_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := newStore().GetEvents(ctx, "list-1", 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetEventsByType(t *testing.T) {
	store := newStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"list-b", "list-a", "list-c"} {
		events := fixtures.NewEvents(id).With(eventsourcing.WithTimestamp(base.Add(time.Duration(i)*time.Hour))).
			Build(fixtures.ListCreated{Name: id}, fixtures.ItemAdded{Item: "x", Qty: 1})
		if _, err := store.Append(t.Context(), events, 0); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.GetEventsByType(t.Context(), "ListCreated", eventsourcing.TimeWindow{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"list-b", "list-a", "list-c"}
	if len(all) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(all))
	}
	for i, ev := range all {
		if ev.AggregateID != want[i] {
			t.Errorf("event %d: got %s, want %s", i, ev.AggregateID, want[i])
		}
	}

	window, err := store.GetEventsByType(t.Context(), "ListCreated", eventsourcing.TimeWindow{
		From: base.Add(time.Hour),
		To:   base.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 2 || window[0].AggregateID != "list-a" {
		t.Fatalf("unexpected window result %v", window)
	}
}

func TestImport(t *testing.T) {
	store := newStore()
	rec := eventsourcing.Record{AggregateID: "list-1", AggregateType: "List", EventType: "ListCreated", Data: []byte(`{"name":"x"}`), Version: 1}
	if err := store.Import(rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Import(rec); !errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict on a taken slot, got %v", err)
	}

	got, err := store.GetEvents(t.Context(), "list-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Payload != (fixtures.ListCreated{Name: "x"}) {
		t.Fatalf("unexpected payload %#v", got[0].Payload)
	}
}

func TestClose(t *testing.T) {
	store := newStore()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := store.GetEvents(t.Context(), "list-1", 1)
	if !errors.Is(err, eventsourcing.ErrEventStoreIsClosed) {
		t.Fatalf("expected ErrEventStoreIsClosed, got %v", err)
	}
	_, err = fixtures.Seed(t.Context(), store, "list-1", fixtures.ListCreated{})
	if !errors.Is(err, eventsourcing.ErrEventStoreIsClosed) {
		t.Fatalf("expected ErrEventStoreIsClosed, got %v", err)
	}
}

func TestConcurrent_Appends(t *testing.T) {
	store := newStore()
	const writers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(t.Context(), fixtures.NewEvents("list-1").Build(fixtures.ListCreated{}), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, eventsourcing.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if won != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d conflicts", won, conflicts)
	}
	if n := len(store.Records("list-1")); n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
}

func TestSnapshotStore(t *testing.T) {
	ctx := t.Context()
	s := NewSnapshotStore()

	if _, err := s.LoadSnapshot(ctx, "list-1"); !errors.Is(err, eventsourcing.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	data := []byte(`{"name":"a"}`)
	if err := s.SaveSnapshot(ctx, eventsourcing.Snapshot{AggregateID: "list-1", Version: 5, Data: data}); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	if err := s.SaveSnapshot(ctx, eventsourcing.Snapshot{AggregateID: "list-1", Version: 3}); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSnapshot(ctx, "list-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 5 || string(got.Data) != `{"name":"a"}` {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
