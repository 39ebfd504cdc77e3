package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyorganizer/eventsourcing"
)

// WithEventTelemetry traces a projection. The span is linked to the trace that
// appended the event when its metadata carries one.
func WithEventTelemetry(name string, next eventsourcing.EventHandler) eventsourcing.EventHandler {
	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, event eventsourcing.DomainEvent) error {
		eventType := event.EventType()
		attr := []attribute.KeyValue{
			AttrHandlerName.String(name),
			AttrEventType.String(eventType),
			AttrEventID.String(event.EventID.String()),
			AttrAggregateID.String(event.AggregateID),
			AttrAggregateVersion.Int64(int64(event.Version)),
		}

		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attr...),
		}
		if remote := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), event)); remote.IsValid() {
			opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("events.handle %s", eventType), opts...)
		defer span.End()

		metricAttrs := metric.WithAttributes(AttrHandlerName.String(name), AttrEventType.String(eventType))

		startTime := time.Now()
		err := next.Handle(ctx, event)
		EventHandlerDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), metricAttrs)

		if err != nil {
			var skipped *eventsourcing.ErrSkippedEvent
			if errors.As(err, &skipped) {
				span.SetStatus(codes.Ok, "event skipped")
				return err
			}
			EventHandlerErrors.Add(ctx, 1, metricAttrs)
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return err
		}

		EventsHandled.Add(ctx, 1, metricAttrs)
		span.SetStatus(codes.Ok, "")
		return nil
	})
}
