package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Repository loads and saves aggregates of type A through an EventStore.
type Repository[A Aggregate] interface {
	// GetByID rebuilds the aggregate from its events. found is false, with a
	// nil error, when the aggregate has no events.
	GetByID(ctx context.Context, id string) (agg A, found bool, err error)

	// Save appends the uncommitted events of agg. On success the events are
	// marked committed; on failure agg is left untouched so the caller can
	// reload and retry.
	Save(ctx context.Context, agg A) error

	// AggregateType is the type name stored with the events of A.
	AggregateType() string
}

// Factory constructs an empty aggregate with the given id.
type Factory[A Aggregate] func(id string) A

// RepositoryOption configures a repository built by NewRepository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	log           *slog.Logger
	snapshots     SnapshotStore
	snapshotEvery uint64
	handlers      []EventHandler
}

// WithLogger sets the logger; the default discards.
func WithLogger(log *slog.Logger) RepositoryOption {
	return func(o *repositoryOptions) { o.log = log }
}

// WithSnapshotStore enables read-through snapshots for aggregates that
// implement Snapshotter.
func WithSnapshotStore(store SnapshotStore) RepositoryOption {
	return func(o *repositoryOptions) { o.snapshots = store }
}

// WithSnapshotEvery writes a snapshot after a save that crosses a multiple of
// n. Requires WithSnapshotStore.
func WithSnapshotEvery(n uint64) RepositoryOption {
	return func(o *repositoryOptions) { o.snapshotEvery = n }
}

// WithEventHandlers registers handlers called with every committed event,
// e.g. projections.
func WithEventHandlers(handlers ...EventHandler) RepositoryOption {
	return func(o *repositoryOptions) { o.handlers = append(o.handlers, handlers...) }
}

// EventSourcedRepository is the EventStore-backed Repository.
type EventSourcedRepository[A Aggregate] struct {
	log           *slog.Logger
	store         EventStore
	factory       Factory[A]
	aggregateType string
	opts          repositoryOptions
}

// NewRepository returns a repository for aggregates built by factory.
func NewRepository[A Aggregate](store EventStore, factory Factory[A], opts ...RepositoryOption) *EventSourcedRepository[A] {
	o := repositoryOptions{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return &EventSourcedRepository[A]{
		log:           o.log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:         store,
		factory:       factory,
		aggregateType: factory("").AggregateType(),
		opts:          o,
	}
}

// AggregateType returns the type name of the aggregates this repository builds.
func (r *EventSourcedRepository[A]) AggregateType() string { return r.aggregateType }

var _ Repository[Aggregate] = (*EventSourcedRepository[Aggregate])(nil)

func (r *EventSourcedRepository[A]) GetByID(ctx context.Context, id string) (A, bool, error) {
	var zero A
	if id == "" {
		return zero, false, errors.New("aggregate id is empty")
	}

	agg := r.factory(id)
	log := r.log.With(slog.Group("agg", slog.String("type", agg.AggregateType()), slog.String("id", id)))

	fromVersion := uint64(1)
	restored := r.restoreSnapshot(ctx, log, agg)
	if restored {
		fromVersion = agg.Version() + 1
	}

	events, err := r.store.GetEvents(ctx, id, fromVersion)
	if err != nil {
		return zero, false, fmt.Errorf("load %s %q: %w", agg.AggregateType(), id, err)
	}
	if len(events) == 0 && !restored {
		log.DebugContext(ctx, "not found")
		return zero, false, nil
	}

	SortByVersion(events)
	if err := agg.LoadFromHistory(events); err != nil {
		if !restored {
			return zero, false, fmt.Errorf("load %s %q: %w", agg.AggregateType(), id, err)
		}
		log.WarnContext(ctx, "replay after snapshot failed, replaying full history", slog.Any("error", err))
		return r.loadFull(ctx, id)
	}

	log.DebugContext(ctx, "loaded",
		slog.Uint64("version", agg.Version()),
		slog.Int("events", len(events)),
		slog.Bool("snapshot", restored),
	)
	return agg, true, nil
}

// loadFull rebuilds the aggregate without snapshots.
func (r *EventSourcedRepository[A]) loadFull(ctx context.Context, id string) (A, bool, error) {
	var zero A
	agg := r.factory(id)
	events, err := r.store.GetEvents(ctx, id, 1)
	if err != nil {
		return zero, false, fmt.Errorf("load %s %q: %w", agg.AggregateType(), id, err)
	}
	if len(events) == 0 {
		return zero, false, nil
	}
	SortByVersion(events)
	if err := agg.LoadFromHistory(events); err != nil {
		return zero, false, fmt.Errorf("load %s %q: %w", agg.AggregateType(), id, err)
	}
	return agg, true, nil
}

func (r *EventSourcedRepository[A]) restoreSnapshot(ctx context.Context, log *slog.Logger, agg A) bool {
	if r.opts.snapshots == nil {
		return false
	}
	if _, ok := any(agg).(Snapshotter); !ok {
		return false
	}
	s, err := r.opts.snapshots.LoadSnapshot(ctx, agg.AggregateID())
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			log.WarnContext(ctx, "loading snapshot failed", slog.Any("error", err))
		}
		return false
	}
	if err := RestoreSnapshot(agg, s); err != nil {
		log.WarnContext(ctx, "restoring snapshot failed", slog.Any("error", err))
		return false
	}
	log.DebugContext(ctx, "snapshot applied", slog.Uint64("version", s.Version))
	return true
}

func (r *EventSourcedRepository[A]) Save(ctx context.Context, agg A) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	expectedVersion := events[0].Version - 1
	log := r.log.With(slog.Group("agg",
		slog.String("type", agg.AggregateType()),
		slog.String("id", agg.AggregateID()),
		slog.Uint64("expected_version", expectedVersion),
	))

	result, err := r.store.Append(ctx, events, expectedVersion)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			log.InfoContext(ctx, "concurrency conflict", slog.Any("error", err))
		}
		return fmt.Errorf("save %s %q: %w", agg.AggregateType(), agg.AggregateID(), err)
	}
	agg.MarkEventsAsCommitted()

	log.DebugContext(ctx, "saved",
		slog.Int("events", len(events)),
		slog.Uint64("version", result.NextExpectedVersion),
	)

	r.dispatch(ctx, log, events)
	r.maybeSnapshot(ctx, log, agg, expectedVersion)
	return nil
}

// dispatch hands committed events to the registered handlers. The events are
// durable at this point; handler failures are logged and the read models can
// be rebuilt from the store.
func (r *EventSourcedRepository[A]) dispatch(ctx context.Context, log *slog.Logger, events []DomainEvent) {
	for _, h := range r.opts.handlers {
		for _, ev := range events {
			err := h.Handle(WithEvent(ctx, ev), ev)
			var skipped *ErrSkippedEvent
			if err == nil || errors.As(err, &skipped) {
				continue
			}
			log.ErrorContext(ctx, "event handler failed",
				slog.String("event", ev.String()),
				slog.String("handler", fmt.Sprintf("%T", h)),
				slog.Any("error", err),
			)
		}
	}
}

func (r *EventSourcedRepository[A]) maybeSnapshot(ctx context.Context, log *slog.Logger, agg A, before uint64) {
	if r.opts.snapshots == nil || r.opts.snapshotEvery == 0 {
		return
	}
	if agg.Version()/r.opts.snapshotEvery == before/r.opts.snapshotEvery {
		return
	}
	ss, ok := any(agg).(interface {
		Aggregate
		Snapshotter
	})
	if !ok {
		return
	}
	s, err := TakeSnapshot(ss)
	if err == nil {
		err = r.opts.snapshots.SaveSnapshot(ctx, s)
	}
	if err != nil {
		log.WarnContext(ctx, "writing snapshot failed", slog.Any("error", err))
		return
	}
	log.DebugContext(ctx, "snapshot written", slog.Uint64("version", s.Version))
}
