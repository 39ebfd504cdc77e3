package memory

import (
	"context"
	"sync"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore keeps the latest snapshot of each aggregate in memory.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]eventsourcing.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]eventsourcing.Snapshot)}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.snapshots[snap.AggregateID]; ok && cur.Version >= snap.Version {
		return nil
	}
	snap.Data = append([]byte(nil), snap.Data...)
	s.snapshots[snap.AggregateID] = snap
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, aggregateID string) (eventsourcing.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return eventsourcing.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return eventsourcing.Snapshot{}, eventsourcing.ErrSnapshotNotFound
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, nil
}
