package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyorganizer/eventsourcing"
)

// WithQueryTelemetry wraps a QueryHandler with OpenTelemetry tracing and metrics.
//
// Each execution runs in a span named after the query type and records
// QueriesInFlight, QueriesDuration and either QueriesHandled or QueriesFailed.
// A query that finds no aggregate is answered, not failed: the span keeps
// status Ok and gets a not_found event.
//
// Example Usage:
//
//	handler := WithQueryTelemetry(getFamilyHandler)
//	result, err := handler.HandleQuery(ctx, qry)
func WithQueryTelemetry[T eventsourcing.Query, R any](next eventsourcing.QueryHandler[T, R]) eventsourcing.QueryHandler[T, R] {
	var zero T
	return &telemetryQueryHandler[T, R]{
		next:      next,
		queryType: fmt.Sprintf("%T", zero),
	}
}

type telemetryQueryHandler[T eventsourcing.Query, R any] struct {
	next      eventsourcing.QueryHandler[T, R]
	queryType string
}

func (h *telemetryQueryHandler[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("query.handle %s", h.queryType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrQueryType.String(h.queryType),
			AttrQueryID.String(string(qry.ID())),
		),
	)
	defer span.End()

	typeAttr := metric.WithAttributes(AttrQueryType.String(h.queryType))
	QueriesInFlight.Add(ctx, 1, typeAttr)
	defer QueriesInFlight.Add(ctx, -1, typeAttr)

	startTime := time.Now()
	result, err := h.next.HandleQuery(ctx, qry)
	QueriesDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, eventsourcing.ErrAggregateNotFound):
		span.AddEvent("not_found")
		span.SetStatus(codes.Ok, "")
	default:
		span.SetAttributes(AttrErrorType.String(errorType(err)))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		QueriesFailed.Add(ctx, 1, typeAttr)
		return result, err
	}

	QueriesHandled.Add(ctx, 1, typeAttr)
	return result, err
}
