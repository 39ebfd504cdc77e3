package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyorganizer/eventsourcing"
)

type telemetryRepository[A eventsourcing.Aggregate] struct {
	next          eventsourcing.Repository[A]
	aggregateType string
	cfg           config
}

// WithRepositoryTelemetry wraps a Repository with spans and metrics. Loads and
// saves are labelled with the aggregate type name stored with the events.
func WithRepositoryTelemetry[A eventsourcing.Aggregate](next eventsourcing.Repository[A], options ...Option) eventsourcing.Repository[A] {
	return &telemetryRepository[A]{
		next:          next,
		aggregateType: next.AggregateType(),
		cfg:           newConfig(options),
	}
}

func (r *telemetryRepository[A]) AggregateType() string { return r.aggregateType }

func (r *telemetryRepository[A]) GetByID(ctx context.Context, id string) (A, bool, error) {
	ctx, span := tracer.Start(ctx, r.cfg.operation(ctx, "Repository.GetByID"),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(r.cfg.attributes(ctx,
			AttrOperation.String("load"),
			AttrAggregateID.String(id),
			AttrAggregateType.String(r.aggregateType),
		)...),
	)
	defer span.End()

	start := time.Now()
	agg, found, err := r.next.GetByID(ctx, id)

	attrs := metric.WithAttributes(AttrOperation.String("load"), AttrAggregateType.String(r.aggregateType))
	RepositoryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	RepositoryLoads.Add(ctx, 1, attrs)

	span.SetAttributes(AttrFound.Bool(found))
	if err != nil {
		span.SetAttributes(AttrErrorType.String(errorType(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agg, found, err
	}
	if found {
		span.SetAttributes(AttrAggregateVersion.Int64(int64(agg.Version())))
	}
	span.SetStatus(codes.Ok, "")
	return agg, found, nil
}

func (r *telemetryRepository[A]) Save(ctx context.Context, agg A) error {
	pending := len(agg.UncommittedEvents())
	ctx, span := tracer.Start(ctx, r.cfg.operation(ctx, "Repository.Save"),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(r.cfg.attributes(ctx,
			AttrOperation.String("save"),
			AttrAggregateID.String(agg.AggregateID()),
			AttrAggregateType.String(r.aggregateType),
			AttrEventCount.Int(pending),
		)...),
	)
	defer span.End()

	start := time.Now()
	err := r.next.Save(ctx, agg)

	attrs := metric.WithAttributes(AttrOperation.String("save"), AttrAggregateType.String(r.aggregateType))
	RepositoryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	RepositorySaves.Add(ctx, 1, attrs)

	if err != nil {
		span.SetAttributes(AttrErrorType.String(errorType(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	AggregateVersionGauge.Record(ctx, int64(agg.Version()), metric.WithAttributes(AttrAggregateType.String(r.aggregateType)))
	span.SetAttributes(AttrAggregateVersion.Int64(int64(agg.Version())))
	span.SetStatus(codes.Ok, "")
	return nil
}
