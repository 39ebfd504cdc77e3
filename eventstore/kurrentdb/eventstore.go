// Package kurrentdb stores each aggregate in its own KurrentDB stream.
package kurrentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/kurrent-io/KurrentDB-Client-Go/kurrentdb"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*EventStore)(nil)

// envelope is written as KurrentDB user metadata. It carries the identity
// fields a Record has besides its payload.
type envelope struct {
	AggregateType string          `json:"aggregateType"`
	Timestamp     time.Time       `json:"timestamp"`
	UserID        string          `json:"userId,omitempty"`
	CorrelationID string          `json:"$correlationId,omitempty"`
	CausationID   string          `json:"$causationId,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type EventStore struct {
	client *kurrentdb.Client
	codec  *eventsourcing.Codec
}

// NewEventStore creates a KurrentDB-backed eventstore
func NewEventStore(client *kurrentdb.Client, codec *eventsourcing.Codec) *EventStore {
	return &EventStore{client: client, codec: codec}
}

// Dial parses a connection string such as "kurrentdb://localhost:2113?tls=false"
// and creates a client.
func Dial(connectionString string) (*kurrentdb.Client, error) {
	cfg, err := kurrentdb.ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	return kurrentdb.NewClient(cfg)
}

func (e *EventStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	if err := eventsourcing.ValidateBatch(events, expectedVersion); err != nil {
		return eventsourcing.AppendResult{}, err
	}
	records, err := e.codec.EncodeAll(events)
	if err != nil {
		return eventsourcing.AppendResult{}, err
	}

	kevents := make([]kurrentdb.EventData, len(records))
	for i, rec := range records {
		meta, err := json.Marshal(envelope{
			AggregateType: rec.AggregateType,
			Timestamp:     rec.Timestamp,
			UserID:        rec.UserID,
			CorrelationID: rec.CorrelationID,
			CausationID:   rec.CausationID,
			Metadata:      rec.Metadata,
		})
		if err != nil {
			return eventsourcing.AppendResult{}, err
		}
		kevents[i] = kurrentdb.EventData{
			EventID:     rec.EventID,
			EventType:   rec.EventType,
			ContentType: kurrentdb.ContentTypeJson,
			Data:        rec.Data,
			Metadata:    meta,
		}
	}

	// stream revisions are zero based, aggregate versions start at one.
	var state kurrentdb.StreamState = kurrentdb.NoStream{}
	if expectedVersion > 0 {
		state = kurrentdb.StreamRevision{Value: expectedVersion - 1}
	}

	aggregateID := events[0].AggregateID
	result, err := e.client.AppendToStream(ctx, aggregateID, kurrentdb.AppendToStreamOptions{
		StreamState: state,
	}, kevents...)
	if err != nil {
		if hasCode(err, kurrentdb.ErrorCodeWrongExpectedVersion) {
			return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   e.head(ctx, aggregateID),
				Err:             err,
			}
		}
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	return eventsourcing.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: result.NextExpectedVersion + 1,
	}, nil
}

func (e *EventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	var from kurrentdb.StreamPosition = kurrentdb.Start{}
	if fromVersion > 1 {
		from = kurrentdb.StreamRevision{Value: fromVersion - 1}
	}
	events, err := e.read(ctx, aggregateID, from, eventsourcing.TimeWindow{})
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByVersion(events)
	return events, nil
}

// GetEventsByType reads the $et-<type> projection stream, which requires the
// by-event-type system projection to be running on the server.
func (e *EventStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	events, err := e.read(ctx, "$et-"+eventType, kurrentdb.Start{}, window)
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByTimestamp(events)
	return events, nil
}

func (e *EventStore) Close() error {
	return e.client.Close()
}

func (e *EventStore) read(ctx context.Context, stream string, from kurrentdb.StreamPosition, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	streamer, err := e.client.ReadStream(ctx, stream, kurrentdb.ReadStreamOptions{
		Direction:      kurrentdb.Forwards,
		From:           from,
		ResolveLinkTos: true,
	}, math.MaxUint64)
	if err != nil {
		if hasCode(err, kurrentdb.ErrorCodeResourceNotFound) {
			return nil, nil
		}
		return nil, eventsourcing.WrapStorageError("read "+stream, err)
	}
	defer streamer.Close()

	var out []eventsourcing.DomainEvent
	for {
		resolved, err := streamer.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			if hasCode(err, kurrentdb.ErrorCodeResourceNotFound) {
				return nil, nil
			}
			return nil, eventsourcing.WrapStorageError("read "+stream, err)
		}
		// links whose target was deleted resolve to nothing.
		if resolved.Event == nil {
			continue
		}

		ev, err := e.decode(resolved.Event)
		if err != nil {
			return nil, err
		}
		if window.Contains(ev.Timestamp) {
			out = append(out, ev)
		}
	}
}

func (e *EventStore) decode(recorded *kurrentdb.RecordedEvent) (eventsourcing.DomainEvent, error) {
	var env envelope
	if len(recorded.UserMetadata) > 0 {
		if err := json.Unmarshal(recorded.UserMetadata, &env); err != nil {
			return eventsourcing.DomainEvent{}, fmt.Errorf("%w: metadata of %s@%d: %v",
				eventsourcing.ErrInvalidRecord, recorded.StreamID, recorded.EventNumber, err)
		}
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = recorded.CreatedDate
	}

	return e.codec.Decode(eventsourcing.Record{
		EventID:       recorded.EventID,
		AggregateID:   recorded.StreamID,
		AggregateType: env.AggregateType,
		EventType:     recorded.EventType,
		Data:          recorded.Data,
		Metadata:      env.Metadata,
		Version:       recorded.EventNumber + 1,
		Timestamp:     env.Timestamp.UTC(),
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
	})
}

// head returns the current version of a stream, 0 when it cannot be read.
func (e *EventStore) head(ctx context.Context, stream string) uint64 {
	streamer, err := e.client.ReadStream(context.WithoutCancel(ctx), stream, kurrentdb.ReadStreamOptions{
		Direction: kurrentdb.Backwards,
		From:      kurrentdb.End{},
	}, 1)
	if err != nil {
		return 0
	}
	defer streamer.Close()
	resolved, err := streamer.Recv()
	if err != nil || resolved.Event == nil {
		return 0
	}
	return resolved.Event.EventNumber + 1
}

func hasCode(err error, code kurrentdb.ErrorCode) bool {
	var kerr *kurrentdb.Error
	return errors.As(err, &kerr) && kerr.Code() == code
}
