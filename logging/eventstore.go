package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/familyorganizer/eventsourcing"
)

type loggingStore struct {
	logger *slog.Logger
	next   eventsourcing.EventStore
}

// WithStoreLogging logs the calls of an EventStore at debug level and its
// failures at error level. Conflicts are expected under contention and are
// logged at info level.
func WithStoreLogging(logger *slog.Logger, next eventsourcing.EventStore) eventsourcing.EventStore {
	return &loggingStore{logger: logger, next: next}
}

func (s *loggingStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	l := s.logger.With("op", "append", "expected-version", expectedVersion, "events", len(events))
	if len(events) > 0 {
		l = l.With("aggregate-id", events[0].AggregateID, "aggregate-type", events[0].AggregateType)
	}

	start := time.Now()
	res, err := s.next.Append(ctx, events, expectedVersion)
	l = l.With("took", time.Since(start))

	switch {
	case err == nil:
		l.DebugContext(ctx, "events appended", "version", res.NextExpectedVersion)
	case errors.Is(err, eventsourcing.ErrConcurrencyConflict):
		l.InfoContext(ctx, "append rejected", "error", err)
	default:
		l.ErrorContext(ctx, "append failed", "error", err)
	}
	return res, err
}

func (s *loggingStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	start := time.Now()
	events, err := s.next.GetEvents(ctx, aggregateID, fromVersion)
	s.logRead(ctx, err, "get-events", len(events), time.Since(start), "aggregate-id", aggregateID, "from-version", fromVersion)
	return events, err
}

func (s *loggingStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	start := time.Now()
	events, err := s.next.GetEventsByType(ctx, eventType, window)
	s.logRead(ctx, err, "get-events-by-type", len(events), time.Since(start), "event-type", eventType)
	return events, err
}

func (s *loggingStore) Close() error {
	err := s.next.Close()
	if err != nil {
		s.logger.Error("close failed", "error", err)
	}
	return err
}

func (s *loggingStore) logRead(ctx context.Context, err error, op string, n int, took time.Duration, args ...any) {
	l := s.logger.With("op", op, "took", took).With(args...)
	if err != nil {
		l.ErrorContext(ctx, "read failed", "error", err)
		return
	}
	l.DebugContext(ctx, "events read", "events", n)
}
