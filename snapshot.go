package eventsourcing

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is the materialized state of an aggregate at Version. The event
// log stays the source of truth: a snapshot only shortens replay.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       uint64
	Data          []byte
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time
	// CreatedAt and UpdatedAt are the aggregate's timestamps at Version.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotStore keeps the latest snapshot per aggregate.
type SnapshotStore interface {
	// SaveSnapshot stores s, replacing an older snapshot of the same aggregate.
	// A snapshot older than the stored one is ignored.
	SaveSnapshot(ctx context.Context, s Snapshot) error

	// LoadSnapshot returns the latest snapshot or ErrSnapshotNotFound.
	LoadSnapshot(ctx context.Context, aggregateID string) (Snapshot, error)
}

// TakeSnapshot captures agg at its current version. agg must have no
// uncommitted events.
func TakeSnapshot(agg interface {
	Aggregate
	Snapshotter
}) (Snapshot, error) {
	if len(agg.UncommittedEvents()) > 0 {
		return Snapshot{}, fmt.Errorf("snapshot %s %q: aggregate has uncommitted events", agg.AggregateType(), agg.AggregateID())
	}
	data, err := agg.Snapshot()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s %q: %w", agg.AggregateType(), agg.AggregateID(), err)
	}
	s := Snapshot{
		AggregateID:   agg.AggregateID(),
		AggregateType: agg.AggregateType(),
		Version:       agg.Version(),
		Data:          data,
		Timestamp:     now(),
	}
	if ts, ok := any(agg).(interface {
		CreatedAt() time.Time
		UpdatedAt() time.Time
	}); ok {
		s.CreatedAt = ts.CreatedAt()
		s.UpdatedAt = ts.UpdatedAt()
	}
	return s, nil
}

// RestoreSnapshot loads s into a freshly constructed aggregate.
func RestoreSnapshot(agg Aggregate, s Snapshot) error {
	ss, ok := agg.(Snapshotter)
	if !ok {
		return fmt.Errorf("restore snapshot: %s does not implement Snapshotter", agg.AggregateType())
	}
	vr, ok := agg.(versionRestorer)
	if !ok {
		return fmt.Errorf("restore snapshot: %s does not embed AggregateRoot", agg.AggregateType())
	}
	if s.AggregateID != agg.AggregateID() {
		return fmt.Errorf("restore snapshot of %q into %q: %w", s.AggregateID, agg.AggregateID(), ErrAggregateMismatch)
	}
	if err := ss.RestoreSnapshot(s.Data); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	vr.restoreVersion(s.Version, s.CreatedAt, s.UpdatedAt)
	return nil
}
