package eventsourcing_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/fixtures"
)

func TestCodec_EncodeDecode(t *testing.T) {
	codec := fixtures.NewCodec()
	ev := es.NewDomainEvent("list-1", fixtures.ListType, fixtures.ItemAdded{Item: "milk", Qty: 2},
		es.WithUserID("U1"),
		es.WithCorrelationID("corr-1"),
		es.WithMetadata(map[string]any{"source": "test"}),
		es.WithTimestamp(time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))),
	).WithVersion(3)

	rec, err := codec.Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, "ItemAdded", rec.EventType)
	assert.JSONEq(t, `{"item":"milk","qty":2}`, string(rec.Data))
	assert.JSONEq(t, `{"source":"test"}`, string(rec.Metadata))
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.Equal(t, 123456000, rec.Timestamp.Nanosecond())

	back, err := codec.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, back.EventID)
	assert.Equal(t, fixtures.ItemAdded{Item: "milk", Qty: 2}, back.Payload)
	assert.Equal(t, uint64(3), back.Version)
	assert.Equal(t, "U1", back.UserID)
	assert.Equal(t, "corr-1", back.CorrelationID)
	assert.Equal(t, ev.CausationID, back.CausationID)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, "test", back.Metadata["source"])
}

func TestCodec_EmptyMetadata(t *testing.T) {
	rec, err := fixtures.NewCodec().Encode(
		es.NewDomainEvent("list-1", fixtures.ListType, fixtures.ListCreated{}).WithVersion(1))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(rec.Metadata))
}

type unregistered struct{}

func (unregistered) EventType() string { return "Unregistered" }

func TestCodec_UnknownType(t *testing.T) {
	codec := fixtures.NewCodec()

	_, err := codec.Encode(es.NewDomainEvent("list-1", fixtures.ListType, unregistered{}).WithVersion(1))
	require.ErrorIs(t, err, es.ErrUnknownEventType)

	_, err = codec.Decode(es.Record{AggregateID: "list-1", EventType: "Unregistered", Data: []byte(`{}`), Version: 1})
	var unknown *es.UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Unregistered", unknown.EventType)
}

func TestRecord_Validate(t *testing.T) {
	valid := es.Record{AggregateID: "list-1", EventType: "ListCreated", Version: 1}
	require.NoError(t, valid.Validate())

	long := valid
	long.UserID = string(make([]byte, 101))
	require.ErrorIs(t, long.Validate(), es.ErrInvalidRecord)

	// limits count characters, not bytes
	cyrillic := valid
	cyrillic.AggregateID = strings.Repeat("ж", 60)
	require.NoError(t, cyrillic.Validate())
	cyrillic.AggregateID = strings.Repeat("ж", 101)
	require.ErrorIs(t, cyrillic.Validate(), es.ErrInvalidRecord)

	zero := valid
	zero.Version = 0
	require.ErrorIs(t, zero.Validate(), es.ErrInvalidRecord)
}

func TestDomainEvent_Defaults(t *testing.T) {
	ev := es.NewDomainEvent("list-1", fixtures.ListType, fixtures.ListCreated{})
	assert.Equal(t, ev.EventID.String(), ev.CausationID, "the first event of a chain causes itself")
	assert.Equal(t, ev.CausationID, ev.CorrelationID)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.Equal(t, "ListCreated", ev.EventType())

	md := es.NewDomainEvent("list-1", fixtures.ListType, fixtures.ListCreated{},
		es.WithMetadata(map[string]any{"k": "v"}))
	copied := md.WithVersion(2)
	copied.Metadata["k"] = "changed"
	assert.Equal(t, "v", md.Metadata["k"], "WithVersion must not share metadata")
}

func TestValidateBatch(t *testing.T) {
	events := fixtures.NewEvents("list-1").From(2).Build(fixtures.ItemAdded{}, fixtures.ItemAdded{})

	require.NoError(t, es.ValidateBatch(events, 2))

	tests := map[string]struct {
		events   []es.DomainEvent
		expected uint64
	}{
		"empty":            {nil, 0},
		"wrong start":      {events, 1},
		"mixed aggregates": {append(fixtures.NewEvents("list-2").From(2).Build(fixtures.ItemAdded{}), events[1]), 2},
		"gap":              {[]es.DomainEvent{events[0], events[1].WithVersion(5)}, 2},
		"no payload":       {[]es.DomainEvent{{AggregateID: "list-1", Version: 3}}, 2},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := es.ValidateBatch(tt.events, tt.expected)
			if !errors.Is(err, es.ErrInvalidEventBatch) {
				t.Fatalf("expected ErrInvalidEventBatch, got %v", err)
			}
		})
	}
}

func TestSortByTimestamp(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b1 := es.NewDomainEvent("b", "T", fixtures.ListCreated{}, es.WithTimestamp(at)).WithVersion(1)
	a2 := es.NewDomainEvent("a", "T", fixtures.ListCreated{}, es.WithTimestamp(at)).WithVersion(2)
	a1 := es.NewDomainEvent("a", "T", fixtures.ListCreated{}, es.WithTimestamp(at)).WithVersion(1)
	early := es.NewDomainEvent("z", "T", fixtures.ListCreated{}, es.WithTimestamp(at.Add(-time.Second))).WithVersion(1)

	events := []es.DomainEvent{b1, a2, a1, early}
	es.SortByTimestamp(events)

	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = ev.String()
	}
	assert.Equal(t, []string{"z/ListCreated@1", "a/ListCreated@1", "a/ListCreated@2", "b/ListCreated@1"}, got)
}
