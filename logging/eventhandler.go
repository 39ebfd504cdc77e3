package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/familyorganizer/eventsourcing"
)

func WithLoggingMiddleware(logger *slog.Logger, next eventsourcing.EventHandler) eventsourcing.EventHandler {
	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, event eventsourcing.DomainEvent) error {
		l := logger.With(
			"event-type", event.EventType(),
			"event-id", event.EventID.String(),
			"aggregate-id", event.AggregateID,
			"version", event.Version,
			"causation", event.CausationID,
			"correlation", event.CorrelationID,
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		var skipped *eventsourcing.ErrSkippedEvent
		switch {
		case err == nil:
			l.DebugContext(ctx, "event processed successfully")
		case errors.As(err, &skipped):
			l.DebugContext(ctx, "event skipped")
		default:
			l.ErrorContext(ctx, "error processing event", "error", err)
		}

		return err
	})
}
