package otel

import (
	"context"
	"errors"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*TelemetryStore)(nil)

// TelemetryStore traces and measures the calls of the EventStore it wraps.
// Appended events carry the W3C trace context of the append in their metadata.
type TelemetryStore struct {
	next eventsourcing.EventStore
	cfg  config
}

// WithEventStoreTelemetry wraps next with spans and metrics.
func WithEventStoreTelemetry(next eventsourcing.EventStore, options ...Option) *TelemetryStore {
	return &TelemetryStore{next: next, cfg: newConfig(options)}
}

func (t *TelemetryStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	var aggregateID, aggregateType string
	if len(events) > 0 {
		aggregateID, aggregateType = events[0].AggregateID, events[0].AggregateType
	}

	ctx, span := tracer.Start(ctx, t.cfg.operation(ctx, "EventStore.Append"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("append"),
			AttrAggregateID.String(aggregateID),
			AttrAggregateType.String(aggregateType),
			AttrExpectedVersion.Int64(int64(expectedVersion)),
			AttrEventCount.Int(len(events)),
		)...),
	)
	defer span.End()

	events = withTraceContext(ctx, events)

	start := time.Now()
	result, err := t.next.Append(ctx, events, expectedVersion)

	attrs := metric.WithAttributes(AttrOperation.String("append"), AttrAggregateType.String(aggregateType))
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	EventStoreAppends.Add(ctx, 1, attrs)

	if err != nil {
		recordStoreError(ctx, span, err, aggregateType)
		return result, err
	}

	EventsAppended.Add(ctx, int64(len(events)), metric.WithAttributes(AttrAggregateType.String(aggregateType)))
	span.SetAttributes(AttrAggregateVersion.Int64(int64(result.NextExpectedVersion)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (t *TelemetryStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	ctx, span := tracer.Start(ctx, t.cfg.operation(ctx, "EventStore.GetEvents"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("get_events"),
			AttrAggregateID.String(aggregateID),
			AttrAggregateVersion.Int64(int64(fromVersion)),
		)...),
	)
	defer span.End()

	start := time.Now()
	events, err := t.next.GetEvents(ctx, aggregateID, fromVersion)
	t.recordLoad(ctx, span, "get_events", start, len(events), err)
	return events, err
}

func (t *TelemetryStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	ctx, span := tracer.Start(ctx, t.cfg.operation(ctx, "EventStore.GetEventsByType"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrOperation.String("get_events_by_type"),
			AttrEventType.String(eventType),
		)...),
	)
	defer span.End()

	start := time.Now()
	events, err := t.next.GetEventsByType(ctx, eventType, window)
	t.recordLoad(ctx, span, "get_events_by_type", start, len(events), err)
	return events, err
}

// Close just forwards
func (t *TelemetryStore) Close() error {
	return t.next.Close()
}

func (t *TelemetryStore) recordLoad(ctx context.Context, span trace.Span, op string, start time.Time, n int, err error) {
	attrs := metric.WithAttributes(AttrOperation.String(op))
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	EventStoreLoads.Add(ctx, 1, attrs)

	if err != nil {
		recordStoreError(ctx, span, err, "")
		return
	}
	EventsLoaded.Add(ctx, int64(n), attrs)
	span.SetAttributes(AttrEventCount.Int(n))
	span.SetStatus(codes.Ok, "")
}

func recordStoreError(ctx context.Context, span trace.Span, err error, aggregateType string) {
	errType := errorType(err)
	EventStoreErrors.Add(ctx, 1, metric.WithAttributes(AttrErrorType.String(errType)))
	if errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
		ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(AttrAggregateType.String(aggregateType)))
	}
	span.SetAttributes(AttrErrorType.String(errType))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, eventsourcing.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, eventsourcing.ErrUnknownEventType):
		return "unknown_event_type"
	case errors.Is(err, eventsourcing.ErrMissingApplyHandler):
		return "missing_apply_handler"
	case errors.Is(err, eventsourcing.ErrInvalidEventBatch):
		return "invalid_batch"
	case errors.Is(err, eventsourcing.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "storage"
	}
}

// withTraceContext returns copies of events whose metadata carries the trace
// context of ctx. The input events are left untouched.
func withTraceContext(ctx context.Context, events []eventsourcing.DomainEvent) []eventsourcing.DomainEvent {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return events
	}

	out := make([]eventsourcing.DomainEvent, len(events))
	for i, ev := range events {
		md := make(map[string]any, len(ev.Metadata)+len(carrier))
		maps.Copy(md, ev.Metadata)
		for k, v := range carrier {
			md[k] = v
		}
		ev.Metadata = md
		out[i] = ev
	}
	return out
}

// WithTraceMetadata returns an EventOption storing the trace context of ctx
// in the metadata of a newly raised event.
func WithTraceMetadata(ctx context.Context) eventsourcing.EventOption {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	md := make(map[string]any, len(carrier))
	for k, v := range carrier {
		md[k] = v
	}
	return eventsourcing.WithMetadata(md)
}

// ExtractTraceContext returns ctx carrying the remote span context stored in
// the metadata of ev, if any.
func ExtractTraceContext(ctx context.Context, ev eventsourcing.DomainEvent) context.Context {
	carrier := propagation.MapCarrier{}
	for k, v := range ev.Metadata {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
