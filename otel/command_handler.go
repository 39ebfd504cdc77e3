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

// WithCommandTelemetry wraps a CommandHandler with OpenTelemetry tracing and metrics.
//
// Each execution runs in a span named after the command type and records:
//   - CommandsInFlight while the handler runs
//   - CommandsDuration in milliseconds
//   - CommandsHandled on success, CommandsFailed otherwise
//   - ConcurrencyConflicts when the handler gave up on a conflict
//
// Business rule violations are expected outcomes: the span keeps status Ok and
// gets a business_rule_violation event.
//
// Example Usage:
//
//	handler := WithCommandTelemetry(addMemberHandler)
//	result, err := handler(ctx, cmd)
func WithCommandTelemetry[C eventsourcing.Command](next eventsourcing.CommandHandler[C]) eventsourcing.CommandHandler[C] {
	var zero C
	commandType := fmt.Sprintf("%T", zero)
	typeAttr := metric.WithAttributes(AttrCommandType.String(commandType))

	return func(ctx context.Context, cmd C) (eventsourcing.AppendResult, error) {
		attr := []attribute.KeyValue{
			AttrCommandType.String(commandType),
			AttrAggregateID.String(cmd.AggregateID()),
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("command.handle %s", commandType),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attr...),
		)
		defer span.End()

		CommandsInFlight.Add(ctx, 1, typeAttr)
		defer CommandsInFlight.Add(ctx, -1, typeAttr)

		startTime := time.Now()
		result, err := next(ctx, cmd)
		CommandsDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

		span.SetAttributes(AttrAggregateVersion.Int64(int64(result.NextExpectedVersion)))

		if err == nil {
			span.SetStatus(codes.Ok, "")
			CommandsHandled.Add(ctx, 1, typeAttr)
			return result, nil
		}

		CommandsFailed.Add(ctx, 1, typeAttr)

		if errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
			ConcurrencyConflicts.Add(ctx, 1, typeAttr)
			span.AddEvent("concurrency_conflict", trace.WithAttributes(attr...))
		}

		if errors.Is(err, eventsourcing.ErrBusinessRuleViolation) {
			span.SetStatus(codes.Ok, fmt.Sprintf("business rule violation: %v", err))
			span.AddEvent("business_rule_violation", trace.WithAttributes(attr...))
			return result, err
		}

		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return result, err
	}
}
