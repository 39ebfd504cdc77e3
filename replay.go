package eventsourcing

import (
	"context"
	"fmt"
)

// ReplayService rebuilds aggregates from their stored events without saving
// anything. It only holds an EventReader, so it cannot write to the store.
type ReplayService[A Aggregate] struct {
	reader  EventReader
	factory Factory[A]
}

// NewReplayService returns a ReplayService for aggregates built by factory.
func NewReplayService[A Aggregate](reader EventReader, factory Factory[A]) *ReplayService[A] {
	return &ReplayService[A]{reader: reader, factory: factory}
}

// Replay rebuilds the aggregate from its full history. found is false when
// the aggregate has no events.
func (s *ReplayService[A]) Replay(ctx context.Context, id string) (A, bool, error) {
	return s.replay(ctx, id, 0)
}

// ReplayUntil rebuilds the aggregate from the events up to and including
// version. A version of 0 replays the full history.
func (s *ReplayService[A]) ReplayUntil(ctx context.Context, id string, version uint64) (A, bool, error) {
	return s.replay(ctx, id, version)
}

func (s *ReplayService[A]) replay(ctx context.Context, id string, until uint64) (A, bool, error) {
	var zero A
	agg := s.factory(id)

	events, err := s.reader.GetEvents(ctx, id, 1)
	if err != nil {
		return zero, false, fmt.Errorf("replay %s %q: %w", agg.AggregateType(), id, err)
	}
	SortByVersion(events)

	if until > 0 {
		n := 0
		for n < len(events) && events[n].Version <= until {
			n++
		}
		events = events[:n]
	}
	if len(events) == 0 {
		return zero, false, nil
	}

	if err := agg.ReplayEvents(events); err != nil {
		return zero, false, fmt.Errorf("replay %s %q: %w", agg.AggregateType(), id, err)
	}
	return agg, true, nil
}
